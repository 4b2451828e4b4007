package lifecycle

import (
	"errors"
	"fmt"
)

// ReportStatus is the single source of truth for where a report sits in the workflow.
type ReportStatus string

const (
	ReportPending     ReportStatus = "pending"
	ReportAssigned    ReportStatus = "assigned"
	ReportAccepted    ReportStatus = "accepted"
	ReportRespondedTo ReportStatus = "responded_to"
	ReportResolved    ReportStatus = "resolved"
)

// AssignmentStatus tracks a single response cycle for a report.
type AssignmentStatus string

const (
	AssignmentAssigned            AssignmentStatus = "assigned"
	AssignmentAccepted            AssignmentStatus = "accepted"
	AssignmentRespondedTo         AssignmentStatus = "responded_to"
	AssignmentReturnedForRevision AssignmentStatus = "returned_for_revision"
	AssignmentResolved            AssignmentStatus = "resolved"
)

// Event drives a transition. Events are shared between the two machines;
// not every event is defined on both.
type Event string

const (
	EventAssign            Event = "assign"
	EventAccept            Event = "accept"
	EventRespond           Event = "respond"
	EventSubmitResolution  Event = "submit_resolution"
	EventReturnForRevision Event = "return_for_revision"
	EventResubmit          Event = "resubmit"
	EventResolve           Event = "resolve"
)

// ErrInvalidTransition is matched with errors.Is for any rejected transition.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// TransitionError describes a rejected transition.
type TransitionError struct {
	Machine string
	From    string
	Event   Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: %s cannot %s from %q", e.Machine, e.Event, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

var reportTransitions = map[ReportStatus]map[Event]ReportStatus{
	ReportPending:     {EventAssign: ReportAssigned},
	ReportAssigned:    {EventAccept: ReportAccepted},
	ReportAccepted:    {EventRespond: ReportRespondedTo},
	ReportRespondedTo: {EventResolve: ReportResolved},
}

// The revision loop lives entirely inside the assignment machine.
var assignmentTransitions = map[AssignmentStatus]map[Event]AssignmentStatus{
	AssignmentAssigned: {EventAccept: AssignmentAccepted},
	AssignmentAccepted: {EventRespond: AssignmentRespondedTo},
	AssignmentRespondedTo: {
		EventSubmitResolution:  AssignmentRespondedTo,
		EventReturnForRevision: AssignmentReturnedForRevision,
		EventResolve:           AssignmentResolved,
	},
	AssignmentReturnedForRevision: {EventResubmit: AssignmentRespondedTo},
}

// NextReport returns the status a report moves to on ev, or a *TransitionError.
func NextReport(from ReportStatus, ev Event) (ReportStatus, error) {
	if to, ok := reportTransitions[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{Machine: "report", From: string(from), Event: ev}
}

// NextAssignment returns the status an assignment moves to on ev, or a *TransitionError.
func NextAssignment(from AssignmentStatus, ev Event) (AssignmentStatus, error) {
	if to, ok := assignmentTransitions[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{Machine: "assignment", From: string(from), Event: ev}
}

// EventForResponse maps a commander's requested status to the event that produces it.
// Only forward response statuses are accepted here.
func EventForResponse(to AssignmentStatus) (Event, bool) {
	switch to {
	case AssignmentAccepted:
		return EventAccept, true
	case AssignmentRespondedTo:
		return EventRespond, true
	default:
		return "", false
	}
}

// MirrorsReport reports whether ev also moves the parent report.
func MirrorsReport(ev Event) bool {
	switch ev {
	case EventAccept, EventRespond, EventResolve:
		return true
	default:
		return false
	}
}

func (s ReportStatus) Valid() bool {
	_, ok := reportTransitions[s]
	return ok || s == ReportResolved
}

func (s ReportStatus) Terminal() bool { return s == ReportResolved }

func (s AssignmentStatus) Valid() bool {
	_, ok := assignmentTransitions[s]
	return ok || s == AssignmentResolved
}

// Active reports whether the assignment still occupies its report.
func (s AssignmentStatus) Active() bool { return s != AssignmentResolved }
