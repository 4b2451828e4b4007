package notify

import (
	"context"
	"fmt"

	"incident-portal/internal/assignments"
	"incident-portal/internal/commanders"
	"incident-portal/internal/config"
	"incident-portal/internal/events"
	"incident-portal/internal/lifecycle"
	"incident-portal/internal/reports"
)

type commanderGetter interface {
	Get(ctx context.Context, id string) (commanders.Commander, error)
}

type reportGetter interface {
	Get(ctx context.Context, id string) (reports.Report, error)
}

// Listener emails commanders about new assignments and returned resolutions.
type Listener struct {
	mailer     *Mailer
	commanders commanderGetter
	reports    reportGetter
	settings   func() config.NotificationSettings
}

// NewListener builds a listener. settings is read on every event so changes
// to portal settings apply without a restart.
func NewListener(m *Mailer, cmds commanderGetter, rs reportGetter, settings func() config.NotificationSettings) *Listener {
	return &Listener{mailer: m, commanders: cmds, reports: rs, settings: settings}
}

func (l *Listener) Subscribe(bus *events.Bus) func() {
	return bus.OnEntityChanged(events.TableAssignments, "", l.Handle)
}

func (l *Listener) Handle(ctx context.Context, c events.Change) error {
	a, ok := c.Record.(assignments.Assignment)
	if !ok {
		return fmt.Errorf("notify: unexpected record %T", c.Record)
	}
	s := l.settings()

	var send func(context.Context, commanders.Commander, assignments.Assignment, reports.Report) error
	switch {
	case c.Type == events.Insert && s.EmailOnAssignment:
		send = l.mailer.SendAssignment
	case c.Type == events.Update && a.Status == lifecycle.AssignmentReturnedForRevision && s.EmailOnRevision:
		send = l.mailer.SendRevision
	default:
		return nil
	}

	cmd, err := l.commanders.Get(ctx, a.CommanderID)
	if err != nil {
		return fmt.Errorf("notify: load commander %s: %w", a.CommanderID, err)
	}
	r, err := l.reports.Get(ctx, a.ReportID)
	if err != nil {
		return fmt.Errorf("notify: load report %s: %w", a.ReportID, err)
	}
	return send(ctx, cmd, a, r)
}
