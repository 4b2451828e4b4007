package assignments

import (
	"errors"
	"strings"
	"time"

	"incident-portal/internal/lifecycle"
	"incident-portal/internal/reports"
)

// Assignment binds a report to a commander for one response cycle.
// A returned-for-revision assignment is reused; no second row is created.
type Assignment struct {
	ID          string                     `json:"id" db:"id"`
	ReportID    string                     `json:"report_id" db:"report_id"`
	CommanderID string                     `json:"assigned_to_commander" db:"assigned_to_commander"`
	UnitID      string                     `json:"assigned_to_unit_id" db:"assigned_to_unit_id"`
	AssignedBy  string                     `json:"assigned_by" db:"assigned_by"`
	Status      lifecycle.AssignmentStatus `json:"status" db:"status"`

	AssignedAt  time.Time  `json:"assigned_at" db:"assigned_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`

	ResolutionNotes       string     `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolutionSubmittedAt *time.Time `json:"resolution_submitted_at,omitempty" db:"resolution_submitted_at"`
	ResolvedBy            string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	Casualties       *int `json:"casualties,omitempty" db:"casualties"`
	InjuredPersonnel *int `json:"injured_personnel,omitempty" db:"injured_personnel"`
	CiviliansRescued *int `json:"civilians_rescued,omitempty" db:"civilians_rescued"`
	WeaponsRecovered *int `json:"weapons_recovered,omitempty" db:"weapons_recovered"`

	RevisionReason string `json:"revision_reason,omitempty" db:"revision_reason"`
	RevisionCount  int    `json:"revision_count" db:"revision_count"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Shareable forwards the assignment as is; it holds no reporter identity.
func (a Assignment) Shareable() any { return a }

// Outcome is what a commander files when closing out a response.
type Outcome struct {
	Notes            string `json:"resolution_notes"`
	Casualties       *int   `json:"casualties,omitempty"`
	InjuredPersonnel *int   `json:"injured_personnel,omitempty"`
	CiviliansRescued *int   `json:"civilians_rescued,omitempty"`
	WeaponsRecovered *int   `json:"weapons_recovered,omitempty"`
}

func (o Outcome) validate() error {
	for _, v := range []*int{o.Casualties, o.InjuredPersonnel, o.CiviliansRescued, o.WeaponsRecovered} {
		if v != nil && *v < 0 {
			return ErrInvalidOutcome
		}
	}
	return nil
}

// apply merges o over the assignment. Unset metrics keep their previous value.
func (o Outcome) apply(a *Assignment) {
	if notes := strings.TrimSpace(o.Notes); notes != "" {
		a.ResolutionNotes = notes
	}
	if o.Casualties != nil {
		a.Casualties = intPtr(*o.Casualties)
	}
	if o.InjuredPersonnel != nil {
		a.InjuredPersonnel = intPtr(*o.InjuredPersonnel)
	}
	if o.CiviliansRescued != nil {
		a.CiviliansRescued = intPtr(*o.CiviliansRescued)
	}
	if o.WeaponsRecovered != nil {
		a.WeaponsRecovered = intPtr(*o.WeaponsRecovered)
	}
}

// auditValues is the field set compared when writing audit entries.
func (a Assignment) auditValues() map[string]any {
	return map[string]any{
		"status":                  string(a.Status),
		"assigned_to_commander":   a.CommanderID,
		"assigned_to_unit_id":     a.UnitID,
		"resolution_notes":        a.ResolutionNotes,
		"resolution_submitted_at": timeValue(a.ResolutionSubmittedAt),
		"resolved_by":             a.ResolvedBy,
		"resolved_at":             timeValue(a.ResolvedAt),
		"accepted_at":             timeValue(a.AcceptedAt),
		"responded_at":            timeValue(a.RespondedAt),
		"casualties":              intValue(a.Casualties),
		"injured_personnel":       intValue(a.InjuredPersonnel),
		"civilians_rescued":       intValue(a.CiviliansRescued),
		"weapons_recovered":       intValue(a.WeaponsRecovered),
		"revision_reason":         a.RevisionReason,
		"revision_count":          a.RevisionCount,
	}
}

// Mutation is the committed result of one store operation.
type Mutation struct {
	Before       Assignment
	After        Assignment
	ReportBefore reports.Report
	ReportAfter  reports.Report
}

// ReportChanged reports whether the parent report's status moved.
func (m Mutation) ReportChanged() bool { return m.ReportBefore.Status != m.ReportAfter.Status }

var (
	ErrNotFound               = errors.New("assignments: not found")
	ErrAlreadyAssigned        = errors.New("assignments: report already has an active assignment")
	ErrForbidden              = errors.New("assignments: actor may not perform this action")
	ErrRevisionReasonRequired = errors.New("assignments: revision reason required")
	ErrResolutionNotSubmitted = errors.New("assignments: no resolution has been submitted")
	ErrResolutionNotesMissing = errors.New("assignments: resolution notes required")
	ErrCommanderUnavailable   = errors.New("assignments: commander cannot take assignments")
	ErrInvalidOutcome         = errors.New("assignments: outcome metrics must be non-negative")
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeValue(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().Format(time.RFC3339Nano)
}
