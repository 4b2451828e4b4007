package reports

import (
	"context"
	"time"

	"incident-portal/internal/lifecycle"
)

// Repository abstracts report persistence.
//
// IMPORTANT:
// - Insert must surface a serial_number unique violation as ErrDuplicateSerial.
// - Reports are never deleted.
// - Status changes after intake go through the assignment store, which owns the
//   report/assignment transaction.
type Repository interface {
	Insert(ctx context.Context, r Report) error
	SerialExists(ctx context.Context, serial string) (bool, error)
	Get(ctx context.Context, id string) (Report, error)
	GetBySerial(ctx context.Context, serial string) (Report, error)
	List(ctx context.Context, f ListFilter) ([]Report, error)
}

// StatusWriter is implemented by repositories whose status column can be
// moved outside a SQL transaction (the in-memory repo).
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, status lifecycle.ReportStatus, now time.Time) error
}
