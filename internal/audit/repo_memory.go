package audit

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests
// and single-process deployments without Postgres.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []Entry
	failErr error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// FailWith makes subsequent appends return err. Pass nil to reset.
func (r *MemoryRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *MemoryRepo) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepo) ListByReport(ctx context.Context, reportID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.ReportID == reportID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a copy of every stored entry in append order.
func (r *MemoryRepo) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
