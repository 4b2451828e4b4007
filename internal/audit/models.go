package audit

import "time"

// Entry is an immutable, append-only audit log record.
//
// Invariants:
// - Entries are never updated or deleted.
// - Every report/assignment mutation produces exactly one entry per mutated entity.
// - OldValues/NewValues hold only the fields that changed.
//
// Storage (Postgres):
// - audit_logs with a trigger rejecting UPDATE/DELETE.
// - audit_log_reports joins entries to the report they concern.
type Entry struct {
	ID string `json:"id" db:"id"`

	EntityType EntityType `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	ActionType Action     `json:"action_type" db:"action_type"`

	ActorID   string    `json:"actor_id,omitempty" db:"actor_id"`
	ActorType ActorType `json:"actor_type" db:"actor_type"`

	OldValues map[string]any `json:"old_values,omitempty" db:"old_values"`
	NewValues map[string]any `json:"new_values,omitempty" db:"new_values"`

	SeverityLevel Severity `json:"severity_level" db:"severity_level"`
	// IsSensitive marks entries carrying reporter identity or other PII.
	IsSensitive bool `json:"is_sensitive" db:"is_sensitive"`

	// ReportID links the entry into the report's trail. Assignment entries carry
	// their report's id here.
	ReportID string `json:"report_id,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntityType string

const (
	EntityReport     EntityType = "report"
	EntityAssignment EntityType = "assignment"
	EntityCommander  EntityType = "commander"
)

type ActorType string

const (
	ActorCitizen   ActorType = "citizen"
	ActorAdmin     ActorType = "admin"
	ActorCommander ActorType = "commander"
	ActorSystem    ActorType = "system"
)

// Actor is whoever caused a mutation. Role is the RBAC role at the time of the
// action and may be empty for citizens and the system.
type Actor struct {
	ID   string
	Type ActorType
	Role string
}

// System is the actor used for background reactions (scans, recomputation).
var System = Actor{ID: "system", Type: ActorSystem}

type Action string

const (
	ActionReportSubmitted       Action = "report_submitted"
	ActionReportStatusChanged   Action = "report_status_changed"
	ActionAssignmentCreated     Action = "assignment_created"
	ActionAssignmentAccepted    Action = "assignment_accepted"
	ActionAssignmentResponded   Action = "assignment_responded"
	ActionResolutionSubmitted   Action = "resolution_submitted"
	ActionReturnedForRevision   Action = "returned_for_revision"
	ActionResolutionResubmitted Action = "resolution_resubmitted"
	ActionAssignmentResolved    Action = "assignment_resolved"
	ActionFileScanned           Action = "file_scanned"
	ActionCommanderRegistered   Action = "commander_registered"
	ActionCommanderActivated    Action = "commander_activated"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)
