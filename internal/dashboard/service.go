package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"incident-portal/internal/events"
	"incident-portal/internal/lifecycle"
)

var ErrInvalidRequest = errors.New("dashboard: invalid request")

// Repository abstracts data access for the dashboard.
type Repository interface {
	ListReports(ctx context.Context, rng TimeRange) ([]ReportRow, error)
	ListAssignments(ctx context.Context, rng TimeRange) ([]AssignmentRow, error)
}

// Service computes summaries and keeps the latest all-time snapshot.
type Service struct {
	repo  Repository
	clock func() time.Time

	refreshMu sync.Mutex

	mu       sync.RWMutex
	snapshot Summary
	ready    bool
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Subscribe recomputes the snapshot on every committed report or assignment change.
func (s *Service) Subscribe(bus *events.Bus) func() {
	h := func(ctx context.Context, c events.Change) error {
		_, err := s.Refresh(ctx)
		return err
	}
	unsubReports := bus.OnEntityChanged(events.TableReports, "", h)
	unsubAssignments := bus.OnEntityChanged(events.TableAssignments, "", h)
	return func() {
		unsubReports()
		unsubAssignments()
	}
}

// Refresh recomputes the all-time snapshot. Concurrent refreshes run one at a time.
func (s *Service) Refresh(ctx context.Context) (Summary, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sum, err := s.Compute(ctx, TimeRange{})
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	s.snapshot = sum
	s.ready = true
	s.mu.Unlock()
	return sum, nil
}

// Snapshot returns the latest all-time summary, computing it on first use.
func (s *Service) Snapshot(ctx context.Context) (Summary, error) {
	s.mu.RLock()
	sum, ready := s.snapshot, s.ready
	s.mu.RUnlock()
	if ready {
		return sum, nil
	}
	return s.Refresh(ctx)
}

// Compute aggregates reports and assignments created within rng.
func (s *Service) Compute(ctx context.Context, rng TimeRange) (Summary, error) {
	if !rng.IsZero() && (rng.From.IsZero() || rng.To.IsZero() || !rng.To.After(rng.From)) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("dashboard: repository not configured")
	}

	rs, err := s.repo.ListReports(ctx, rng)
	if err != nil {
		return Summary{}, err
	}
	as, err := s.repo.ListAssignments(ctx, rng)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		Range:        rng,
		GeneratedAt:  s.clock().UTC(),
		ByStatus:     map[string]int{},
		ByUrgency:    map[string]int{},
		ByThreatType: map[string]int{},
		ByState:      map[string]int{},
	}
	for _, r := range rs {
		out.TotalReports++
		out.ByStatus[string(r.Status)]++
		out.ByUrgency[string(r.Urgency)]++
		if r.ThreatType != "" {
			out.ByThreatType[r.ThreatType]++
		}
		if r.State != "" {
			out.ByState[r.State]++
		}
	}

	var (
		resolutionHours float64
		timed           int
	)
	for _, a := range as {
		switch a.Status {
		case lifecycle.AssignmentResolved:
			out.ResolvedAssignments++
			if a.ResolvedAt != nil {
				resolutionHours += a.ResolvedAt.Sub(a.AssignedAt).Hours()
				timed++
			}
		case lifecycle.AssignmentReturnedForRevision:
			out.AwaitingRevision++
			out.ActiveAssignments++
		default:
			out.ActiveAssignments++
		}
		out.Outcomes.Casualties += deref(a.Casualties)
		out.Outcomes.InjuredPersonnel += deref(a.InjuredPersonnel)
		out.Outcomes.CiviliansRescued += deref(a.CiviliansRescued)
		out.Outcomes.WeaponsRecovered += deref(a.WeaponsRecovered)
	}
	if timed > 0 {
		out.AverageResolutionHours = resolutionHours / float64(timed)
	}
	return out, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
