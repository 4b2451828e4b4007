package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"incident-portal/internal/events"
	"incident-portal/internal/lifecycle"
)

func ptr[T any](v T) *T { return &v }

func seeded(now time.Time) *MemoryRepo {
	repo := NewMemoryRepo()
	repo.Add([]ReportRow{
		{Status: lifecycle.ReportPending, Urgency: lifecycle.UrgencyCritical, ThreatType: "kidnapping", State: "Kaduna", CreatedAt: now},
		{Status: lifecycle.ReportResolved, Urgency: lifecycle.UrgencyHigh, ThreatType: "armed robbery", State: "Lagos", CreatedAt: now},
		{Status: lifecycle.ReportRespondedTo, Urgency: lifecycle.UrgencyHigh, ThreatType: "armed robbery", State: "Lagos", CreatedAt: now.Add(-48 * time.Hour)},
	}, []AssignmentRow{
		{Status: lifecycle.AssignmentResolved, AssignedAt: now, ResolvedAt: ptr(now.Add(6 * time.Hour)), Casualties: ptr(1), CiviliansRescued: ptr(3)},
		{Status: lifecycle.AssignmentReturnedForRevision, AssignedAt: now.Add(-48 * time.Hour), WeaponsRecovered: ptr(2)},
	})
	return repo
}

func TestDashboard_ComputeAggregates(t *testing.T) {
	now := time.Unix(1740000000, 0).UTC()
	svc := NewService(seeded(now))

	out, err := svc.Compute(context.Background(), TimeRange{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalReports != 3 {
		t.Fatalf("expected 3 reports, got %d", out.TotalReports)
	}
	if out.ByThreatType["armed robbery"] != 2 || out.ByState["Lagos"] != 2 {
		t.Fatalf("unexpected breakdown: %+v", out)
	}
	if out.ByUrgency["critical"] != 1 || out.ByStatus["pending"] != 1 {
		t.Fatalf("unexpected urgency/status counts: %+v %+v", out.ByUrgency, out.ByStatus)
	}
	if out.ResolvedAssignments != 1 || out.ActiveAssignments != 1 || out.AwaitingRevision != 1 {
		t.Fatalf("unexpected assignment counts: %+v", out)
	}
	if out.AverageResolutionHours != 6 {
		t.Fatalf("expected 6h average resolution, got %v", out.AverageResolutionHours)
	}
	want := OutcomeTotals{Casualties: 1, CiviliansRescued: 3, WeaponsRecovered: 2}
	if out.Outcomes != want {
		t.Fatalf("expected outcomes %+v, got %+v", want, out.Outcomes)
	}
}

func TestDashboard_ComputeRange(t *testing.T) {
	now := time.Unix(1740000000, 0).UTC()
	svc := NewService(seeded(now))

	out, err := svc.Compute(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalReports != 2 || out.AwaitingRevision != 0 {
		t.Fatalf("expected range to exclude old rows, got %+v", out)
	}

	_, err = svc.Compute(context.Background(), TimeRange{From: now, To: now})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDashboard_SnapshotRefreshesOnChange(t *testing.T) {
	now := time.Unix(1740000000, 0).UTC()
	repo := NewMemoryRepo()
	svc := NewService(repo)
	bus := events.NewBus(nil)
	svc.Subscribe(bus)

	first, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if first.TotalReports != 0 {
		t.Fatalf("expected empty snapshot, got %d", first.TotalReports)
	}

	repo.Add([]ReportRow{{Status: lifecycle.ReportPending, Urgency: lifecycle.UrgencyLow, CreatedAt: now}}, nil)
	// Not yet refreshed.
	if s, _ := svc.Snapshot(context.Background()); s.TotalReports != 0 {
		t.Fatalf("expected cached snapshot, got %d", s.TotalReports)
	}

	bus.Publish(context.Background(), events.Change{Table: events.TableReports, Type: events.Insert, EntityID: "r1"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bus.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	s, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.TotalReports != 1 {
		t.Fatalf("expected refreshed snapshot with 1 report, got %d", s.TotalReports)
	}
}

func TestPostgresRepo_ListReportsAllTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Unix(1740000000, 0).UTC()
	mock.ExpectQuery("FROM reports").
		WithArgs(nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"status", "urgency", "threat_type", "state", "created_at"}).
			AddRow("pending", "high", "arson", "Oyo", now))

	rows, err := NewPostgresRepo(db).ListReports(context.Background(), TimeRange{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 1 || rows[0].Urgency != lifecycle.UrgencyHigh {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
