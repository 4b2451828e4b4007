package assignments

import (
	"context"

	"incident-portal/internal/lifecycle"
	"incident-portal/internal/reports"
)

// CreateCheck inspects the locked report and returns the status it moves to,
// or an error that aborts the create.
type CreateCheck func(r reports.Report) (lifecycle.ReportStatus, error)

// MutateFunc edits a locked assignment in place and returns the status its
// report moves to. Returning an error leaves both rows untouched.
type MutateFunc func(a *Assignment, r reports.Report) (lifecycle.ReportStatus, error)

// Store owns the assignment rows and the report status column they drive.
// Every method that writes changes the assignment and its report atomically.
type Store interface {
	// Create inserts a and moves its report, or returns ErrAlreadyAssigned
	// when the report already has an active assignment.
	Create(ctx context.Context, a Assignment, check CreateCheck) (Mutation, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (Mutation, error)

	Get(ctx context.Context, id string) (Assignment, error)
	// ActiveForReport returns the non-resolved assignment for a report or ErrNotFound.
	ActiveForReport(ctx context.Context, reportID string) (Assignment, error)
	ListByCommander(ctx context.Context, commanderID string) ([]Assignment, error)
	ListByReport(ctx context.Context, reportID string) ([]Assignment, error)
}
