package shortener

import "context"

// Repository defines the durable storage contract for short links and their clicks.
type Repository interface {
	// Create inserts link and assigns its ID. Unique violations are reported
	// as ErrCodeTaken or ErrAliasTaken.
	Create(ctx context.Context, link *ShortLink) error
	GetByCode(ctx context.Context, code Code) (*ShortLink, error)
	// TokenInUse reports whether any link other than excludeID uses token as
	// its short code or custom alias.
	TokenInUse(ctx context.Context, token string, excludeID int64) (bool, error)
	Update(ctx context.Context, link *ShortLink) error
	// Delete removes the link and, by cascade, its clicks.
	Delete(ctx context.Context, code Code) error
	// RecordClick increments the link's counter and appends click in one
	// transaction, returning the new counter value. It fills in click.ID and
	// click.LinkID.
	RecordClick(ctx context.Context, code Code, click *ClickEvent) (int64, error)
}
