/*
Package generic provides the shared kernel of the field operations core.

PURPOSE:
  Types used by more than one workflow package live here: identifiers, the
  explicit session context (Actor), the job record exposed by the job/schedule
  collaborator, decimal helpers, day-granularity time arithmetic, the week
  boundary policy and the centralized error kinds.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Type-safe IDs so an employee ID can't be passed as a job ID
  - Actor: Who is performing an operation and which van they have selected
  - Job: A scheduled unit of billable work with an assigned crew
  - Quantities: decimal.Decimal for hours and material units

DESIGN PRINCIPLES:
  1. No ambient state: every operation receives its Actor explicitly
  2. Precision: hours and quantities use decimal.Decimal, never float64
  3. Closed sets: categories, leave types and destinations are typed constants

SEE ALSO:
  - time.go: TimePoint and WeekPolicy
  - errors.go: Error kinds shared by every workflow package
  - store.go: Collaborator interfaces (jobs, directory)
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type JobID string
type EntryID string
type MaterialID string
type VanID string
type WindowID string
type DispositionID string

// =============================================================================
// ACTOR - Explicit session context
// =============================================================================

// Actor is the resolved identity of whoever triggered an operation.
// The identity/session provider produces it; the core never looks it up itself.
type Actor struct {
	EmployeeID EmployeeID
	// VanID is the van currently selected in the actor's session, if any.
	VanID VanID
	Role  Role
}

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleSystem   Role = "system"
)

// SystemActor is used for writes that no person triggered directly.
var SystemActor = Actor{EmployeeID: "system", Role: RoleSystem}

// =============================================================================
// JOB - Record owned by the job/schedule collaborator
// =============================================================================

type JobStatus string

const (
	JobScheduled  JobStatus = "scheduled"
	JobInProgress JobStatus = "in_progress"
	JobComplete   JobStatus = "complete"
	JobCancelled  JobStatus = "cancelled"
)

// IsActive reports whether crew changes still matter for the job.
func (s JobStatus) IsActive() bool {
	return s == JobScheduled || s == JobInProgress
}

type Job struct {
	ID            JobID
	Name          string
	Status        JobStatus
	ScheduledDate TimePoint
	// ScheduledTime is the free-form start time ("08:00"), empty when unset.
	ScheduledTime string
	Crew          []EmployeeID
}

// HasCrewMember reports whether emp is on the job's crew.
func (j Job) HasCrewMember(emp EmployeeID) bool {
	for _, c := range j.Crew {
		if c == emp {
			return true
		}
	}
	return false
}

// =============================================================================
// QUANTITIES
// =============================================================================

// MaxDecimalScale bounds the exponent of caller-supplied hours and
// quantities in both directions.
const MaxDecimalScale = 6

// CheckScale rejects d when its exponent lies outside ±MaxDecimalScale. Run it
// before any arithmetic or comparison on untrusted input.
func CheckScale(field string, d decimal.Decimal) error {
	if exp := d.Exponent(); exp < -MaxDecimalScale || exp > MaxDecimalScale {
		return Invalid(field, "must have at most %d decimal places", MaxDecimalScale)
	}
	return nil
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Sum adds every value in ds.
func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}
