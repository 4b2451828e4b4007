package dashboard

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory dashboard repository for tests.
type MemoryRepo struct {
	mu sync.Mutex

	Reports     []ReportRow
	Assignments []AssignmentRow
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListReports(ctx context.Context, rng TimeRange) ([]ReportRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReportRow, 0, len(r.Reports))
	for _, row := range r.Reports {
		if inRange(rng, row.CreatedAt) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListAssignments(ctx context.Context, rng TimeRange) ([]AssignmentRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AssignmentRow, 0, len(r.Assignments))
	for _, row := range r.Assignments {
		if inRange(rng, row.AssignedAt) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Add appends rows under the lock.
func (r *MemoryRepo) Add(reports []ReportRow, assignments []AssignmentRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reports = append(r.Reports, reports...)
	r.Assignments = append(r.Assignments, assignments...)
}

func inRange(rng TimeRange, t time.Time) bool {
	if rng.IsZero() {
		return true
	}
	return !t.Before(rng.From) && t.Before(rng.To)
}
