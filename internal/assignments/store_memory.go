package assignments

import (
	"context"
	"sort"
	"sync"

	"incident-portal/internal/reports"
)

// MemoryStore keeps assignments in memory and drives report status through a
// reports.MemoryRepo. A single mutex stands in for the row locks and the
// partial unique index of the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	reports *reports.MemoryRepo
	byID    map[string]Assignment
}

func NewMemoryStore(reportRepo *reports.MemoryRepo) *MemoryStore {
	return &MemoryStore{reports: reportRepo, byID: map[string]Assignment{}}
}

func (m *MemoryStore) Create(ctx context.Context, a Assignment, check CreateCheck) (Mutation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.reports.Get(ctx, a.ReportID)
	if err != nil {
		return Mutation{}, err
	}
	next, err := check(r)
	if err != nil {
		return Mutation{}, err
	}
	if _, ok := m.activeLocked(a.ReportID); ok {
		return Mutation{}, ErrAlreadyAssigned
	}

	if err := m.reports.UpdateStatus(ctx, r.ID, next, a.AssignedAt); err != nil {
		return Mutation{}, err
	}
	m.byID[a.ID] = a

	after := r
	after.Status = next
	after.UpdatedAt = a.AssignedAt
	return Mutation{After: a, ReportBefore: r, ReportAfter: after}, nil
}

func (m *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (Mutation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.byID[id]
	if !ok {
		return Mutation{}, ErrNotFound
	}
	r, err := m.reports.Get(ctx, before.ReportID)
	if err != nil {
		return Mutation{}, err
	}

	after := before
	next, err := fn(&after, r)
	if err != nil {
		return Mutation{}, err
	}

	reportAfter := r
	if next != r.Status {
		if err := m.reports.UpdateStatus(ctx, r.ID, next, after.UpdatedAt); err != nil {
			return Mutation{}, err
		}
		reportAfter.Status = next
		reportAfter.UpdatedAt = after.UpdatedAt
	}
	m.byID[id] = after
	return Mutation{Before: before, After: after, ReportBefore: r, ReportAfter: reportAfter}, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) ActiveForReport(ctx context.Context, reportID string) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activeLocked(reportID)
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) activeLocked(reportID string) (Assignment, bool) {
	for _, a := range m.byID {
		if a.ReportID == reportID && a.Status.Active() {
			return a, true
		}
	}
	return Assignment{}, false
}

func (m *MemoryStore) ListByCommander(ctx context.Context, commanderID string) ([]Assignment, error) {
	return m.list(func(a Assignment) bool { return a.CommanderID == commanderID }), nil
}

func (m *MemoryStore) ListByReport(ctx context.Context, reportID string) ([]Assignment, error) {
	return m.list(func(a Assignment) bool { return a.ReportID == reportID }), nil
}

// Len returns the number of stored assignments.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *MemoryStore) list(keep func(Assignment) bool) []Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.byID {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
