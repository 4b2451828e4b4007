package commanders

import (
	"context"
	"time"
)

// Repository persists commander accounts. Emails are stored lowercased and unique.
type Repository interface {
	Insert(ctx context.Context, c Commander) error
	Get(ctx context.Context, id string) (Commander, error)
	GetByEmail(ctx context.Context, email string) (Commander, error)
	List(ctx context.Context) ([]Commander, error)
	// Activate stores the password hash and marks the commander active.
	Activate(ctx context.Context, id, passwordHash string, now time.Time) error
}
