package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresRepo_AppendLinksReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("a1", EntityAssignment, "as1", ActionAssignmentCreated, sqlmock.AnyArg(), ActorAdmin,
			sqlmock.AnyArg(), []byte(`{"status":"assigned"}`), SeverityInfo, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log_reports").
		WithArgs("a1", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewPostgresRepo(db).Append(context.Background(), Entry{
		ID:            "a1",
		EntityType:    EntityAssignment,
		EntityID:      "as1",
		ActionType:    ActionAssignmentCreated,
		ActorID:       "admin-1",
		ActorType:     ActorAdmin,
		NewValues:     map[string]any{"status": "assigned"},
		SeverityLevel: SeverityInfo,
		ReportID:      "r1",
		CreatedAt:     now,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

const trailReportID = "6f1c2a9e-3b4d-4c5e-8f70-1a2b3c4d5e6f"

func TestPostgresRepo_ListByReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "entity_type", "entity_id", "action_type", "actor_id", "actor_type",
		"old_values", "new_values", "severity_level", "is_sensitive", "created_at",
	}).
		AddRow("a1", "report", "r1", "report_submitted", nil, "citizen", nil, []byte(`{"status":"pending"}`), "info", true, now).
		AddRow("a2", "report", "r1", "report_status_changed", "admin-1", "admin", []byte(`{"status":"pending"}`), []byte(`{"status":"assigned"}`), "info", false, now.Add(time.Minute))
	mock.ExpectQuery("FROM audit_logs l").WithArgs(trailReportID).WillReturnRows(rows)

	got, err := NewPostgresRepo(db).ListByReport(context.Background(), trailReportID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ActorID != "" || !got[0].IsSensitive || got[0].NewValues["status"] != "pending" {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].OldValues["status"] != "pending" || got[1].ReportID != trailReportID {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}
