/*
store.go - Collaborator interfaces shared across workflow packages

PURPOSE:
  The workflow core does not own jobs or employees. It reads and writes them
  through the interfaces below, which the persistence layer implements.
  Package-specific stores (time entries, leave windows, dispositions) are
  declared next to the code that consumes them.

KEY INTERFACES:
  JobStore:  Job/schedule collaborator (crew lists, scheduled date, status)
  Directory: Employee/van existence checks

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - store/memory/memory.go: In-memory for testing
*/
package generic

import "context"

// =============================================================================
// JOB STORE - Job/schedule collaborator
// =============================================================================

type JobStore interface {
	// GetJob returns the job or a NotFoundError.
	GetJob(ctx context.Context, id JobID) (*Job, error)

	// JobsForEmployee returns jobs in [from, to] whose crew includes emp,
	// ordered by scheduled date.
	JobsForEmployee(ctx context.Context, emp EmployeeID, from, to TimePoint) ([]Job, error)

	// RemoveCrewMember removes emp from the job's crew and returns the job as
	// it stands after the removal. Each call is its own unit of work.
	RemoveCrewMember(ctx context.Context, id JobID, emp EmployeeID) (*Job, error)

	// CompleteJob transitions the job to JobComplete.
	CompleteJob(ctx context.Context, id JobID) error
}

// =============================================================================
// DIRECTORY - Employee and van resolution
// =============================================================================

type Directory interface {
	EmployeeExists(ctx context.Context, id EmployeeID) (bool, error)
	VanExists(ctx context.Context, id VanID) (bool, error)
}
