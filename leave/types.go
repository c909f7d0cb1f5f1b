// Package leave turns call-outs and leave requests into unavailability
// windows and, for same-day call-outs, removes the employee from the crews of
// the jobs they were scheduled on.
package leave

import (
	"time"

	"github.com/warp/field-ops/generic"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

type Type string

const (
	TypeSick     Type = "sick"
	TypeVacation Type = "vacation"
	TypePersonal Type = "personal"
	TypeOther    Type = "other"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeSick, TypeVacation, TypePersonal, TypeOther:
		return true
	}
	return false
}

// ParseType rejects anything outside the closed set.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", generic.Invalid("type", "unknown leave type %q", s)
	}
	return t, nil
}

// =============================================================================
// APPROVAL STATUS
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// =============================================================================
// UNAVAILABILITY WINDOW
// =============================================================================

// Window is a span of days (both ends inclusive) an employee is unavailable.
type Window struct {
	ID         generic.WindowID
	EmployeeID generic.EmployeeID
	Start      generic.TimePoint
	End        generic.TimePoint
	Type       Type
	Reason     string
	Status     Status
	// AutoRemoved is set once the employee was taken off at least one job crew.
	AutoRemoved bool
	CreatedAt   time.Time

	ResolvedBy  *generic.EmployeeID
	ResolvedAt  *time.Time
	ResolveNote string
}

// Covers reports whether day falls inside the window.
func (w Window) Covers(day generic.TimePoint) bool {
	return day.Within(w.Start, w.End)
}

func (w Window) IsResolved() bool { return w.Status != StatusPending }

// =============================================================================
// CALL-OUT RESULT
// =============================================================================

// AffectedJob is a job the employee was removed from, as it stands afterwards.
type AffectedJob struct {
	JobID              generic.JobID
	Name               string
	ScheduledDate      generic.TimePoint
	ScheduledTime      string
	RemainingCrew      []generic.EmployeeID
	RemainingCrewCount int
	// NeedsReassignment is set when nobody is left on the crew.
	NeedsReassignment bool
}

type CallOutResult struct {
	Window       Window
	AffectedJobs []AffectedJob
	Failures     []generic.CascadeFailure
}
