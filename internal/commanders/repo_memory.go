package commanders

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Commander
	byEmail map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Commander{}, byEmail: map[string]string{}}
}

func (m *MemoryRepo) Insert(ctx context.Context, c Commander) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[c.Email]; ok {
		return ErrEmailTaken
	}
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c.ID
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (Commander, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return Commander{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryRepo) GetByEmail(ctx context.Context, email string) (Commander, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return Commander{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryRepo) List(ctx context.Context) ([]Commander, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Commander, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (m *MemoryRepo) Activate(ctx context.Context, id, passwordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.PasswordHash = passwordHash
	c.Status = StatusActive
	c.UpdatedAt = now
	m.byID[id] = c
	return nil
}

// SetStatus is a test helper for disabling accounts.
func (m *MemoryRepo) SetStatus(id string, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		c.Status = s
		m.byID[id] = c
	}
}
