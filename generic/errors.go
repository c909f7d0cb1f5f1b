/*
errors.go - Centralized error kinds for the workflow core

PURPOSE:
  All error types in one place. Workflow packages return these (or wrap them)
  so callers can branch with errors.Is / errors.As without knowing which
  package produced the failure.

ERROR KINDS:
  1. Validation        - malformed input, rejected before any write
  2. WeekLocked        - mutation attempted on a submitted week
  3. IncompleteDisposition - reconcile did not account for every material
  4. NotFound          - a collaborator could not resolve a reference
  5. PartialCascade    - call-out recorded, some crew updates failed (warning)

USAGE:
  if errors.Is(err, generic.ErrWeekLocked) {
      // refuse the edit
  }

  var locked *generic.WeekLockedError
  if errors.As(err, &locked) {
      fmt.Println(locked.WeekEnding)
  }
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the kind of every malformed-input failure.
	ErrValidation = errors.New("validation failed")

	// ErrWeekLocked is returned when a locked employee-week would be mutated.
	ErrWeekLocked = errors.New("week is locked")

	// ErrIncompleteDisposition is returned when reconcile cannot account for
	// every qualifying material allocation.
	ErrIncompleteDisposition = errors.New("incomplete material disposition")

	// ErrNotFound is returned when a referenced job, material, van or employee
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPartialCascade marks a call-out whose window was recorded but whose
	// crew updates did not all succeed. Not fatal.
	ErrPartialCascade = errors.New("call-out cascade partially failed")

	// ErrAlreadyResolved is returned when a resolved leave window is resolved again.
	ErrAlreadyResolved = errors.New("leave window already resolved")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// WeekLockedError identifies the locked employee-week.
type WeekLockedError struct {
	EmployeeID EmployeeID
	WeekEnding TimePoint
}

func (e *WeekLockedError) Error() string {
	return fmt.Sprintf("week ending %s is locked for employee %s", e.WeekEnding, e.EmployeeID)
}

func (e *WeekLockedError) Unwrap() error { return ErrWeekLocked }

// IncompleteDispositionError lists the materials that block job completion.
type IncompleteDispositionError struct {
	JobID JobID
	// Missing are qualifying materials with no disposition supplied.
	Missing []MaterialID
	// Unbalanced are materials whose used + leftover differs from the base quantity.
	Unbalanced []MaterialID
}

func (e *IncompleteDispositionError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %v", e.Missing))
	}
	if len(e.Unbalanced) > 0 {
		parts = append(parts, fmt.Sprintf("unbalanced %v", e.Unbalanced))
	}
	return fmt.Sprintf("job %s: incomplete material disposition: %s", e.JobID, strings.Join(parts, "; "))
}

func (e *IncompleteDispositionError) Unwrap() error { return ErrIncompleteDisposition }

// NotFoundError names the unresolved reference.
type NotFoundError struct {
	Kind string // "job", "material", "van", "employee", "window"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for a NotFoundError.
func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// CascadeFailure is one job whose crew could not be updated.
type CascadeFailure struct {
	JobID  JobID
	Reason string
}

// PartialCascadeError carries the per-job failures of a call-out cascade.
type PartialCascadeError struct {
	WindowID WindowID
	Failures []CascadeFailure
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("window %s recorded, %d crew update(s) failed", e.WindowID, len(e.Failures))
}

func (e *PartialCascadeError) Unwrap() error { return ErrPartialCascade }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrWeekLocked) ||
		errors.Is(err, ErrIncompleteDisposition) ||
		errors.Is(err, ErrAlreadyResolved)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
