package reports

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"incident-portal/internal/lifecycle"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Report
	bySerial map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Report{}, bySerial: map[string]string{}}
}

func (m *MemoryRepo) Insert(ctx context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySerial[r.SerialNumber]; ok {
		return ErrDuplicateSerial
	}
	m.byID[r.ID] = cloneReport(r)
	m.bySerial[r.SerialNumber] = r.ID
	return nil
}

func (m *MemoryRepo) SerialExists(ctx context.Context, serial string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bySerial[serial]
	return ok, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return cloneReport(r), nil
}

func (m *MemoryRepo) GetBySerial(ctx context.Context, serial string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySerial[serial]
	if !ok {
		return Report{}, ErrNotFound
	}
	return cloneReport(m.byID[id]), nil
}

func (m *MemoryRepo) List(ctx context.Context, f ListFilter) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Report, 0, len(m.byID))
	for _, r := range m.byID {
		if f.matches(r) {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) UpdateStatus(ctx context.Context, id string, status lifecycle.ReportStatus, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = now
	m.byID[id] = r
	return nil
}

func cloneReport(r Report) Report {
	r.Images = slices.Clone(r.Images)
	r.Videos = slices.Clone(r.Videos)
	r.Documents = slices.Clone(r.Documents)
	return r
}
