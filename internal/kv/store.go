package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned by Get when the key does not exist.
var ErrNil = errors.New("kv: nil")

// Store is the minimal key-value and sorted-set protocol the service needs
// from its cache backend.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set overwrites the value at key. A zero ttl keeps the key forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)

	// ZAdd adds member with score, overwriting the score of an existing member.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRemRangeByScore removes members whose score lies within [min, max].
	// Bounds use redis syntax: "-inf", "+inf", and a "(" prefix for exclusive.
	ZRemRangeByScore(ctx context.Context, key, min, max string) error
	ZCard(ctx context.Context, key string) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
}
