package assignments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"incident-portal/internal/audit"
	"incident-portal/internal/commanders"
	"incident-portal/internal/events"
	"incident-portal/internal/lifecycle"
	"incident-portal/internal/metrics"
	"incident-portal/internal/rbac"
	"incident-portal/internal/reports"
	"incident-portal/pkg/logger"
	"incident-portal/pkg/utils"
)

const assignLockTTL = 10 * time.Second

// Commanders resolves the target of an assignment.
type Commanders interface {
	Get(ctx context.Context, id string) (commanders.Commander, error)
}

// Locker is a cross-process lock keyed by report id. *utils.KeyLock satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Manager drives assignments through their lifecycle.
//
// Invariants:
// - At most one non-resolved assignment per report (enforced by the Store).
// - A rejected call mutates nothing.
// - Every committed call writes one audit entry per mutated row and
//   publishes the matching change events.
type Manager struct {
	store      Store
	commanders Commanders
	audit      *audit.Service
	bus        *events.Bus
	locker     Locker
	clock      func() time.Time
}

func NewManager(store Store, cmds Commanders, auditSvc *audit.Service, bus *events.Bus) *Manager {
	return &Manager{
		store:      store,
		commanders: cmds,
		audit:      auditSvc,
		bus:        bus,
		clock:      time.Now,
	}
}

// WithLocker adds a distributed per-report lock around Assign.
func (m *Manager) WithLocker(l Locker) *Manager {
	m.locker = l
	return m
}

// WithClock overrides the time source. Used by tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Assign binds reportID to commanderID and moves the report to assigned.
func (m *Manager) Assign(ctx context.Context, reportID, commanderID string, actor audit.Actor) (Assignment, error) {
	if !rbac.IsAdmin(actor.Role) {
		return Assignment{}, ErrForbidden
	}
	cmd, err := m.commanders.Get(ctx, commanderID)
	if errors.Is(err, commanders.ErrNotFound) {
		return Assignment{}, fmt.Errorf("%w: %s not found", ErrCommanderUnavailable, commanderID)
	}
	if err != nil {
		return Assignment{}, err
	}
	if !cmd.Assignable() {
		return Assignment{}, fmt.Errorf("%w: %s is %s", ErrCommanderUnavailable, commanderID, cmd.Status)
	}

	if m.locker != nil {
		release, err := m.locker.Acquire(ctx, "assign:"+reportID, assignLockTTL)
		if errors.Is(err, utils.ErrLockHeld) {
			m.observe(lifecycle.EventAssign, ErrAlreadyAssigned)
			return Assignment{}, ErrAlreadyAssigned
		}
		if err != nil {
			return Assignment{}, fmt.Errorf("assignments: acquire lock: %w", err)
		}
		defer release()
	}

	now := m.clock().UTC()
	a := Assignment{
		ID:          uuid.NewString(),
		ReportID:    reportID,
		CommanderID: cmd.ID,
		UnitID:      cmd.UnitID,
		AssignedBy:  actor.ID,
		Status:      lifecycle.AssignmentAssigned,
		AssignedAt:  now,
		UpdatedAt:   now,
	}
	mut, err := m.store.Create(ctx, a, func(r reports.Report) (lifecycle.ReportStatus, error) {
		if r.Status != lifecycle.ReportPending {
			return r.Status, ErrAlreadyAssigned
		}
		return lifecycle.NextReport(r.Status, lifecycle.EventAssign)
	})
	m.observe(lifecycle.EventAssign, err)
	if err != nil {
		return Assignment{}, err
	}

	logger.From(ctx).Info("report assigned",
		slog.String("report_id", reportID),
		slog.String("assignment_id", a.ID),
		slog.String("commander_id", cmd.ID),
	)
	m.record(ctx, lifecycle.EventAssign, actor, mut)
	m.publish(ctx, events.Insert, mut)
	return mut.After, nil
}

// Respond moves an assignment forward to accepted or responded_to.
func (m *Manager) Respond(ctx context.Context, id string, to lifecycle.AssignmentStatus, actor audit.Actor) (Assignment, error) {
	ev, ok := lifecycle.EventForResponse(to)
	if !ok {
		m.observe(lifecycle.EventRespond, lifecycle.ErrInvalidTransition)
		return Assignment{}, fmt.Errorf("%w: respond cannot move to %q", lifecycle.ErrInvalidTransition, to)
	}
	return m.transition(ctx, id, ev, actor, func(a *Assignment, now time.Time) error {
		switch ev {
		case lifecycle.EventAccept:
			a.AcceptedAt = timePtr(now)
		case lifecycle.EventRespond:
			a.RespondedAt = timePtr(now)
		}
		return nil
	})
}

// SubmitResolution files the commander's resolution while the assignment is responded_to.
func (m *Manager) SubmitResolution(ctx context.Context, id string, o Outcome, actor audit.Actor) (Assignment, error) {
	if err := checkResolution(o); err != nil {
		return Assignment{}, err
	}
	return m.transition(ctx, id, lifecycle.EventSubmitResolution, actor, func(a *Assignment, now time.Time) error {
		o.apply(a)
		a.ResolutionSubmittedAt = timePtr(now)
		return nil
	})
}

// Resolve closes the assignment and its report.
func (m *Manager) Resolve(ctx context.Context, id string, o Outcome, actor audit.Actor) (Assignment, error) {
	if err := o.validate(); err != nil {
		return Assignment{}, err
	}
	return m.transition(ctx, id, lifecycle.EventResolve, actor, func(a *Assignment, now time.Time) error {
		o.apply(a)
		a.ResolvedBy = actor.ID
		a.ResolvedAt = timePtr(now)
		return nil
	})
}

// ReturnForRevision sends a submitted resolution back to the commander.
// The report status is left alone.
func (m *Manager) ReturnForRevision(ctx context.Context, id, reason string, actor audit.Actor) (Assignment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Assignment{}, ErrRevisionReasonRequired
	}
	return m.transition(ctx, id, lifecycle.EventReturnForRevision, actor, func(a *Assignment, now time.Time) error {
		if a.ResolutionSubmittedAt == nil {
			return ErrResolutionNotSubmitted
		}
		a.RevisionReason = reason
		a.RevisionCount++
		return nil
	})
}

// Resubmit files a revised resolution and returns the assignment to responded_to.
func (m *Manager) Resubmit(ctx context.Context, id string, o Outcome, actor audit.Actor) (Assignment, error) {
	if err := checkResolution(o); err != nil {
		return Assignment{}, err
	}
	return m.transition(ctx, id, lifecycle.EventResubmit, actor, func(a *Assignment, now time.Time) error {
		o.apply(a)
		a.ResolutionSubmittedAt = timePtr(now)
		return nil
	})
}

func (m *Manager) Get(ctx context.Context, id string) (Assignment, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ActiveForReport(ctx context.Context, reportID string) (Assignment, error) {
	return m.store.ActiveForReport(ctx, reportID)
}

func (m *Manager) ListByCommander(ctx context.Context, commanderID string) ([]Assignment, error) {
	return m.store.ListByCommander(ctx, commanderID)
}

func (m *Manager) ListByReport(ctx context.Context, reportID string) ([]Assignment, error) {
	return m.store.ListByReport(ctx, reportID)
}

func checkResolution(o Outcome) error {
	if strings.TrimSpace(o.Notes) == "" {
		return ErrResolutionNotesMissing
	}
	return o.validate()
}

// transition runs one lifecycle event inside the store's atomic mutate.
// Order of checks: actor, assignment machine, report machine, then apply.
func (m *Manager) transition(ctx context.Context, id string, ev lifecycle.Event, actor audit.Actor, apply func(a *Assignment, now time.Time) error) (Assignment, error) {
	now := m.clock().UTC()
	mut, err := m.store.Mutate(ctx, id, func(a *Assignment, r reports.Report) (lifecycle.ReportStatus, error) {
		if err := authorize(ev, *a, actor); err != nil {
			return r.Status, err
		}
		next, err := lifecycle.NextAssignment(a.Status, ev)
		if err != nil {
			return r.Status, err
		}
		reportNext := r.Status
		if lifecycle.MirrorsReport(ev) {
			if reportNext, err = lifecycle.NextReport(r.Status, ev); err != nil {
				return r.Status, err
			}
		}
		if err := apply(a, now); err != nil {
			return r.Status, err
		}
		a.Status = next
		a.UpdatedAt = now
		return reportNext, nil
	})
	m.observe(ev, err)
	if err != nil {
		return Assignment{}, err
	}

	logger.From(ctx).Info("assignment transitioned",
		slog.String("assignment_id", id),
		slog.String("event", string(ev)),
		slog.String("from", string(mut.Before.Status)),
		slog.String("to", string(mut.After.Status)),
	)
	m.record(ctx, ev, actor, mut)
	m.publish(ctx, events.Update, mut)
	return mut.After, nil
}

// authorize: commander events need the assigned commander, admin events an admin.
// super_admin passes both.
func authorize(ev lifecycle.Event, a Assignment, actor audit.Actor) error {
	if rbac.IsSuperAdmin(actor.Role) {
		return nil
	}
	switch ev {
	case lifecycle.EventResolve, lifecycle.EventReturnForRevision:
		if rbac.IsAdmin(actor.Role) {
			return nil
		}
	default:
		if actor.Role == rbac.RoleCommander && actor.ID == a.CommanderID {
			return nil
		}
	}
	return ErrForbidden
}

func (m *Manager) observe(ev lifecycle.Event, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, ErrAlreadyAssigned):
		result = "rejected"
	case errors.Is(err, ErrForbidden):
		result = "forbidden"
	default:
		result = "error"
	}
	metrics.Transitions.WithLabelValues(string(ev), result).Inc()
}

var eventActions = map[lifecycle.Event]audit.Action{
	lifecycle.EventAssign:            audit.ActionAssignmentCreated,
	lifecycle.EventAccept:            audit.ActionAssignmentAccepted,
	lifecycle.EventRespond:           audit.ActionAssignmentResponded,
	lifecycle.EventSubmitResolution:  audit.ActionResolutionSubmitted,
	lifecycle.EventReturnForRevision: audit.ActionReturnedForRevision,
	lifecycle.EventResubmit:          audit.ActionResolutionResubmitted,
	lifecycle.EventResolve:           audit.ActionAssignmentResolved,
}

// record writes one entry for the assignment and, when its status moved, one for the report.
func (m *Manager) record(ctx context.Context, ev lifecycle.Event, actor audit.Actor, mut Mutation) {
	if m.audit == nil {
		return
	}

	var oldValues, newValues map[string]any
	if ev == lifecycle.EventAssign {
		newValues = mut.After.auditValues()
		for k, v := range newValues {
			if v == nil || v == "" {
				delete(newValues, k)
			}
		}
	} else {
		oldValues, newValues = audit.Diff(mut.Before.auditValues(), mut.After.auditValues())
	}

	severity := audit.SeverityInfo
	if ev == lifecycle.EventReturnForRevision {
		severity = audit.SeverityWarning
	}
	m.audit.Record(ctx, audit.Entry{
		EntityType:    audit.EntityAssignment,
		EntityID:      mut.After.ID,
		ActionType:    eventActions[ev],
		ActorID:       actor.ID,
		ActorType:     actor.Type,
		OldValues:     oldValues,
		NewValues:     newValues,
		SeverityLevel: severity,
		ReportID:      mut.After.ReportID,
	})

	if mut.ReportChanged() {
		m.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityReport,
			EntityID:   mut.ReportAfter.ID,
			ActionType: audit.ActionReportStatusChanged,
			ActorID:    actor.ID,
			ActorType:  actor.Type,
			OldValues:  map[string]any{"status": string(mut.ReportBefore.Status)},
			NewValues:  map[string]any{"status": string(mut.ReportAfter.Status)},
			ReportID:   mut.ReportAfter.ID,
		})
	}
}

func (m *Manager) publish(ctx context.Context, t events.Type, mut Mutation) {
	m.bus.Publish(ctx, events.Change{
		Table:    events.TableAssignments,
		Type:     t,
		EntityID: mut.After.ID,
		ReportID: mut.After.ReportID,
		Record:   mut.After,
	})
	if mut.ReportChanged() {
		m.bus.Publish(ctx, events.Change{
			Table:    events.TableReports,
			Type:     events.Update,
			EntityID: mut.ReportAfter.ID,
			ReportID: mut.ReportAfter.ID,
			Record:   mut.ReportAfter,
		})
	}
}
