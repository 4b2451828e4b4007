package dashboard

import (
	"time"

	"incident-portal/internal/lifecycle"
)

// TimeRange bounds a summary by creation time. A zero range means all time.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// ReportRow is the slice of a report the dashboard aggregates.
type ReportRow struct {
	Status     lifecycle.ReportStatus
	Urgency    lifecycle.Urgency
	ThreatType string
	State      string
	CreatedAt  time.Time
}

// AssignmentRow is the slice of an assignment the dashboard aggregates.
type AssignmentRow struct {
	Status           lifecycle.AssignmentStatus
	AssignedAt       time.Time
	ResolvedAt       *time.Time
	Casualties       *int
	InjuredPersonnel *int
	CiviliansRescued *int
	WeaponsRecovered *int
}

type OutcomeTotals struct {
	Casualties       int `json:"casualties"`
	InjuredPersonnel int `json:"injured_personnel"`
	CiviliansRescued int `json:"civilians_rescued"`
	WeaponsRecovered int `json:"weapons_recovered"`
}

// Summary is the admin dashboard snapshot.
type Summary struct {
	Range       TimeRange `json:"range"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalReports int            `json:"total_reports"`
	ByStatus     map[string]int `json:"by_status"`
	ByUrgency    map[string]int `json:"by_urgency"`
	ByThreatType map[string]int `json:"by_threat_type"`
	ByState      map[string]int `json:"by_state"`

	ActiveAssignments   int `json:"active_assignments"`
	ResolvedAssignments int `json:"resolved_assignments"`
	AwaitingRevision    int `json:"awaiting_revision"`

	AverageResolutionHours float64       `json:"average_resolution_hours"`
	Outcomes               OutcomeTotals `json:"outcomes"`
}
