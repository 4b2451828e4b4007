package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"incident-portal/internal/audit"
	"incident-portal/internal/events"
	"incident-portal/internal/metrics"
	"incident-portal/internal/reports"
	"incident-portal/pkg/logger"
)

// Listener scans every attachment of newly inserted reports.
// It runs on the change bus, so scanning never delays intake.
type Listener struct {
	scanner Scanner
	audit   *audit.Service
}

func NewListener(s Scanner, auditSvc *audit.Service) *Listener {
	return &Listener{scanner: s, audit: auditSvc}
}

// Subscribe registers the listener for reports/INSERT and returns the unsubscribe func.
func (l *Listener) Subscribe(bus *events.Bus) func() {
	return bus.OnEntityChanged(events.TableReports, events.Insert, l.Handle)
}

// Handle scans each file in the inserted report. A failed scan is counted and
// the remaining files are still scanned.
func (l *Listener) Handle(ctx context.Context, c events.Change) error {
	r, ok := c.Record.(reports.Report)
	if !ok {
		return fmt.Errorf("scanner: unexpected record %T", c.Record)
	}

	var errs []error
	for _, f := range r.Files() {
		res, err := l.scanner.Scan(ctx, f.URL, r.ID, string(f.Category))
		if err != nil {
			metrics.FileScans.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", f.URL, err))
			continue
		}
		metrics.FileScans.WithLabelValues(string(res.Status)).Inc()
		l.record(ctx, r, f, res)
	}
	return errors.Join(errs...)
}

func (l *Listener) record(ctx context.Context, r reports.Report, f reports.Attachment, res Result) {
	severity := audit.SeverityInfo
	if res.Status.Flagged() {
		severity = audit.SeverityWarning
		logger.From(ctx).Warn("attachment flagged by scanner",
			slog.String("report_id", r.ID),
			slog.String("file_url", f.URL),
			slog.String("status", string(res.Status)),
			slog.String("threats", strings.Join(res.Threats, ",")),
		)
	}
	if l.audit == nil {
		return
	}
	newValues := map[string]any{
		"file_url":  f.URL,
		"file_type": string(f.Category),
		"status":    string(res.Status),
	}
	if len(res.Threats) > 0 {
		newValues["threats"] = res.Threats
	}
	l.audit.Record(ctx, audit.Entry{
		EntityType:    audit.EntityReport,
		EntityID:      r.ID,
		ActionType:    audit.ActionFileScanned,
		ActorID:       audit.System.ID,
		ActorType:     audit.System.Type,
		NewValues:     newValues,
		SeverityLevel: severity,
		ReportID:      r.ID,
	})
}
