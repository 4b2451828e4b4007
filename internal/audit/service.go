package audit

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"incident-portal/internal/metrics"
	"incident-portal/pkg/logger"
)

// Repository is the persistence contract for audit entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListByReport(ctx context.Context, reportID string) ([]Entry, error)
}

// Service records audit entries for report and assignment mutations.
//
// IMPORTANT:
// - Audit is internal-only. Trails are exposed to admins, never to citizens.
// - Record is best-effort: a failed write is logged and counted, never returned.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var (
	ErrInvalidEntry      = errors.New("audit: invalid entry")
	ErrRepoNotConfigured = errors.New("audit: repository not configured")
	ErrReportIDRequired  = errors.New("audit: report id required")
)

// Append validates and stores an entry, filling ID, CreatedAt and SeverityLevel.
func (s *Service) Append(ctx context.Context, e Entry) error {
	if s == nil || s.repo == nil {
		return ErrRepoNotConfigured
	}
	if e.EntityType == "" || e.EntityID == "" || e.ActionType == "" {
		return ErrInvalidEntry
	}
	if e.ActorType == "" {
		e.ActorType = ActorSystem
	}
	if e.SeverityLevel == "" {
		e.SeverityLevel = SeverityInfo
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an entry and swallows the error. The mutation that produced
// the entry has already been committed and must not be rolled back.
func (s *Service) Record(ctx context.Context, e Entry) {
	if err := s.Append(ctx, e); err != nil {
		metrics.AuditWriteFailures.Inc()
		logger.From(ctx).Warn("audit write failed",
			slog.String("entity_type", string(e.EntityType)),
			slog.String("entity_id", e.EntityID),
			slog.String("action", string(e.ActionType)),
			slog.String("err", err.Error()),
		)
	}
}

// Trail returns the entries linked to a report, oldest first.
func (s *Service) Trail(ctx context.Context, reportID string) ([]Entry, error) {
	if s == nil || s.repo == nil {
		return nil, ErrRepoNotConfigured
	}
	if reportID == "" {
		return nil, ErrReportIDRequired
	}
	out, err := s.repo.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Diff returns the subset of old and new values whose keys changed.
// Keys present on only one side are reported on that side.
func Diff(oldValues, newValues map[string]any) (map[string]any, map[string]any) {
	changedOld := map[string]any{}
	changedNew := map[string]any{}
	for k, nv := range newValues {
		ov, ok := oldValues[k]
		if ok && reflect.DeepEqual(ov, nv) {
			continue
		}
		if ok {
			changedOld[k] = ov
		}
		changedNew[k] = nv
	}
	for k, ov := range oldValues {
		if _, ok := newValues[k]; !ok {
			changedOld[k] = ov
		}
	}
	return changedOld, changedNew
}
