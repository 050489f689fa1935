package shortener

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("short link not found")
	ErrGone        = errors.New("short link is no longer available")
	ErrExpired     = fmt.Errorf("%w: expired", ErrGone)
	ErrDeactivated = fmt.Errorf("%w: deactivated", ErrGone)

	ErrInvalidURL   = errors.New("invalid url")
	ErrInvalidAlias = errors.New("invalid custom alias")
	ErrConflict     = errors.New("short code or alias already in use")
	ErrRateLimited  = errors.New("rate limit exceeded")

	// ErrCodeSpaceExhausted is returned when no free code was found within
	// the configured number of attempts.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique short code")
)

// Unique constraint rejections reported by repositories.
var (
	ErrCodeTaken  = errors.New("short code already taken")
	ErrAliasTaken = errors.New("custom alias already taken")
)
