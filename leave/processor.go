/*
processor.go - Leave event processor

PURPOSE:
  Two ways to become unavailable:

  CallOut (same day or already past)
    ┌───────────────┐    ┌─────────────────────┐    ┌──────────────────────┐
    │ window        │──▶ │ for each job that   │──▶ │ crew now empty?      │
    │ auto-approved │    │ day: remove from    │    │ notify manager       │
    └───────────────┘    │ crew (independently)│    └──────────────────────┘
                         └─────────────────────┘

  RequestLeave (future dates only)
    window pending ──▶ notify manager ──▶ Resolve (approve / deny)

  The window is the source of truth. A crew update that fails does not undo
  it; the failure is reported as a *generic.PartialCascadeError next to the
  result so the crew sync can be retried.

SEE ALSO:
  - generic/store.go: JobStore (crew removal)
  - notify/: Notifier implementations
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

type Store interface {
	CreateWindow(ctx context.Context, w Window) (generic.WindowID, error)
	GetWindow(ctx context.Context, id generic.WindowID) (*Window, error)
	ListWindows(ctx context.Context, emp generic.EmployeeID) ([]Window, error)
	MarkAutoRemoved(ctx context.Context, id generic.WindowID) error

	// ResolveWindow moves a pending window to status. It must fail with
	// generic.ErrAlreadyResolved when the window is no longer pending.
	ResolveWindow(ctx context.Context, id generic.WindowID, status Status, by generic.EmployeeID, at time.Time, note string) error
}

// Notifier is told about events a manager must act on.
type Notifier interface {
	JobNeedsReassignment(ctx context.Context, job AffectedJob, removed generic.EmployeeID, w Window) error
	LeaveNeedsApproval(ctx context.Context, w Window) error
}

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Store     Store
	Jobs      generic.JobStore
	Notifier  Notifier
	Directory generic.Directory // optional
	Log       *logrus.Entry
	Now       func() time.Time
}

func NewProcessor(store Store, jobs generic.JobStore, notifier Notifier) *Processor {
	return &Processor{
		Store:    store,
		Jobs:     jobs,
		Notifier: notifier,
		Log:      logrus.NewEntry(logrus.StandardLogger()),
		Now:      time.Now,
	}
}

func (p *Processor) today() generic.TimePoint {
	return generic.DayOf(p.Now())
}

// CallOut records an auto-approved one-day window and, if removeFromSchedule
// is set, takes the employee off every active job scheduled that day.
//
// When some crew updates fail the returned result is still complete for what
// succeeded and err is a *generic.PartialCascadeError.
func (p *Processor) CallOut(
	ctx context.Context,
	emp generic.EmployeeID,
	date generic.TimePoint,
	leaveType Type,
	reason string,
	removeFromSchedule bool,
) (*CallOutResult, error) {
	if err := p.validateEmployee(ctx, emp); err != nil {
		return nil, err
	}
	if !leaveType.IsValid() {
		return nil, generic.Invalid("type", "unknown leave type %q", leaveType)
	}
	if date.IsZero() {
		return nil, generic.Invalid("date", "required")
	}
	if date.After(p.today()) {
		return nil, generic.Invalid("date", "%s is in the future, submit a leave request instead", date)
	}

	window := Window{
		EmployeeID: emp,
		Start:      date,
		End:        date,
		Type:       leaveType,
		Reason:     reason,
		Status:     StatusApproved,
		CreatedAt:  p.Now().UTC(),
	}
	id, err := p.Store.CreateWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to record call-out: %w", err)
	}
	window.ID = id

	log := p.Log.WithFields(logrus.Fields{
		"employee_id": emp,
		"window_id":   id,
		"date":        date.String(),
		"type":        leaveType,
	})
	log.Info("call-out recorded")

	result := &CallOutResult{Window: window}
	if !removeFromSchedule {
		return result, nil
	}

	jobs, err := p.Jobs.JobsForEmployee(ctx, emp, window.Start, window.End)
	if err != nil {
		result.Failures = append(result.Failures, generic.CascadeFailure{
			Reason: fmt.Sprintf("failed to load schedule: %v", err),
		})
		return result, p.partial(result)
	}

	for _, job := range jobs {
		if !job.Status.IsActive() || !window.Covers(job.ScheduledDate) {
			continue
		}
		affected, err := p.removeFromCrew(ctx, job.ID, emp)
		if err != nil {
			log.WithError(err).WithField("job_id", job.ID).Warn("crew update failed")
			result.Failures = append(result.Failures, generic.CascadeFailure{JobID: job.ID, Reason: err.Error()})
			continue
		}
		result.AffectedJobs = append(result.AffectedJobs, *affected)

		if affected.NeedsReassignment && p.Notifier != nil {
			if err := p.Notifier.JobNeedsReassignment(ctx, *affected, emp, window); err != nil {
				log.WithError(err).WithField("job_id", job.ID).Warn("reassignment notification failed")
				result.Failures = append(result.Failures, generic.CascadeFailure{
					JobID:  job.ID,
					Reason: fmt.Sprintf("crew updated but manager not notified: %v", err),
				})
			}
		}
	}

	if len(result.AffectedJobs) > 0 {
		if err := p.Store.MarkAutoRemoved(ctx, id); err != nil {
			log.WithError(err).Warn("failed to flag window as auto-removed")
			result.Failures = append(result.Failures, generic.CascadeFailure{
				Reason: fmt.Sprintf("window not flagged as auto-removed: %v", err),
			})
		} else {
			result.Window.AutoRemoved = true
		}
	}

	log.WithFields(logrus.Fields{
		"affected": len(result.AffectedJobs),
		"failed":   len(result.Failures),
	}).Info("call-out cascade finished")
	return result, p.partial(result)
}

func (p *Processor) removeFromCrew(ctx context.Context, jobID generic.JobID, emp generic.EmployeeID) (*AffectedJob, error) {
	job, err := p.Jobs.RemoveCrewMember(ctx, jobID, emp)
	if err != nil {
		return nil, err
	}
	crew := append([]generic.EmployeeID(nil), job.Crew...)
	return &AffectedJob{
		JobID:              job.ID,
		Name:               job.Name,
		ScheduledDate:      job.ScheduledDate,
		ScheduledTime:      job.ScheduledTime,
		RemainingCrew:      crew,
		RemainingCrewCount: len(crew),
		NeedsReassignment:  len(crew) == 0,
	}, nil
}

func (p *Processor) partial(result *CallOutResult) error {
	if len(result.Failures) == 0 {
		return nil
	}
	return &generic.PartialCascadeError{WindowID: result.Window.ID, Failures: result.Failures}
}

// RequestLeave records a pending window for future dates. It never touches
// job assignments; schedule impact waits for a manager decision.
func (p *Processor) RequestLeave(
	ctx context.Context,
	emp generic.EmployeeID,
	start, end generic.TimePoint,
	leaveType Type,
	reason string,
) (*Window, error) {
	if err := p.validateEmployee(ctx, emp); err != nil {
		return nil, err
	}
	if !leaveType.IsValid() {
		return nil, generic.Invalid("type", "unknown leave type %q", leaveType)
	}
	if start.IsZero() || end.IsZero() {
		return nil, generic.Invalid("dates", "start and end are required")
	}
	if end.Before(start) {
		return nil, generic.Invalid("end_date", "%s is before start %s", end, start)
	}
	if !start.After(p.today()) {
		return nil, generic.Invalid("start_date", "%s is today or earlier, use a call-out instead", start)
	}

	window := Window{
		EmployeeID: emp,
		Start:      start,
		End:        end,
		Type:       leaveType,
		Reason:     reason,
		Status:     StatusPending,
		CreatedAt:  p.Now().UTC(),
	}
	id, err := p.Store.CreateWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to record leave request: %w", err)
	}
	window.ID = id

	log := p.Log.WithFields(logrus.Fields{
		"employee_id": emp,
		"window_id":   id,
		"start":       start.String(),
		"end":         end.String(),
	})
	log.Info("leave request recorded")

	if p.Notifier != nil {
		if err := p.Notifier.LeaveNeedsApproval(ctx, window); err != nil {
			log.WithError(err).Warn("approval notification failed")
		}
	}
	return &window, nil
}

// Resolve approves or denies a pending window. Resolved windows are immutable.
func (p *Processor) Resolve(
	ctx context.Context,
	id generic.WindowID,
	approve bool,
	manager generic.Actor,
	note string,
) (*Window, error) {
	if manager.Role != generic.RoleManager {
		return nil, generic.Invalid("actor", "only managers can resolve leave requests")
	}
	window, err := p.Store.GetWindow(ctx, id)
	if err != nil {
		return nil, err
	}
	if window.IsResolved() {
		return nil, fmt.Errorf("window %s is %s: %w", id, window.Status, generic.ErrAlreadyResolved)
	}

	status := StatusDenied
	if approve {
		status = StatusApproved
	}
	at := p.Now().UTC()
	if err := p.Store.ResolveWindow(ctx, id, status, manager.EmployeeID, at, note); err != nil {
		return nil, err
	}

	window.Status = status
	window.ResolvedBy = &manager.EmployeeID
	window.ResolvedAt = &at
	window.ResolveNote = note

	p.Log.WithFields(logrus.Fields{
		"window_id":  id,
		"status":     status,
		"manager_id": manager.EmployeeID,
	}).Info("leave request resolved")
	return window, nil
}

// Windows lists every window recorded for emp.
func (p *Processor) Windows(ctx context.Context, emp generic.EmployeeID) ([]Window, error) {
	return p.Store.ListWindows(ctx, emp)
}

func (p *Processor) validateEmployee(ctx context.Context, emp generic.EmployeeID) error {
	if emp == "" {
		return generic.Invalid("employee_id", "required")
	}
	if p.Directory == nil {
		return nil
	}
	ok, err := p.Directory.EmployeeExists(ctx, emp)
	if err != nil {
		return fmt.Errorf("failed to resolve employee: %w", err)
	}
	if !ok {
		return generic.NotFound("employee", emp)
	}
	return nil
}
