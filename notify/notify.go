// Package notify delivers manager notifications raised by the leave processor.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/leave"
)

// Log writes each notification as a structured log line.
type Log struct {
	Logger *logrus.Entry
}

func NewLog(logger *logrus.Logger) *Log {
	return &Log{Logger: logrus.NewEntry(logger).WithField("component", "notify")}
}

func (n *Log) JobNeedsReassignment(_ context.Context, job leave.AffectedJob, removed generic.EmployeeID, w leave.Window) error {
	n.Logger.WithFields(logrus.Fields{
		"job_id":         job.JobID,
		"job_name":       job.Name,
		"scheduled_date": job.ScheduledDate.String(),
		"removed":        removed,
		"window_id":      w.ID,
		"leave_type":     w.Type,
	}).Warn("job has no crew left and needs reassignment")
	return nil
}

func (n *Log) LeaveNeedsApproval(_ context.Context, w leave.Window) error {
	n.Logger.WithFields(logrus.Fields{
		"window_id":   w.ID,
		"employee_id": w.EmployeeID,
		"start":       w.Start.String(),
		"end":         w.End.String(),
		"leave_type":  w.Type,
	}).Info("leave request awaiting approval")
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []leave.Notifier

func (f Fanout) JobNeedsReassignment(ctx context.Context, job leave.AffectedJob, removed generic.EmployeeID, w leave.Window) error {
	var errs []error
	for _, n := range f {
		if err := n.JobNeedsReassignment(ctx, job, removed, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) LeaveNeedsApproval(ctx context.Context, w leave.Window) error {
	var errs []error
	for _, n := range f {
		if err := n.LeaveNeedsApproval(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// OUTBOX RECORDS - Persisted by the stores
// =============================================================================

type Kind string

const (
	KindJobNeedsReassignment Kind = "job_needs_reassignment"
	KindLeaveNeedsApproval   Kind = "leave_needs_approval"
)

// Record is a notification persisted for a manager's inbox.
type Record struct {
	ID         string
	Kind       Kind
	EmployeeID generic.EmployeeID
	JobID      generic.JobID
	WindowID   generic.WindowID
	Message    string
	CreatedAt  time.Time
}

// ReassignmentRecord builds the record for a job left without crew.
func ReassignmentRecord(job leave.AffectedJob, removed generic.EmployeeID, w leave.Window, at time.Time) Record {
	return Record{
		Kind:       KindJobNeedsReassignment,
		EmployeeID: removed,
		JobID:      job.JobID,
		WindowID:   w.ID,
		Message: fmt.Sprintf("%s on %s has no crew after %s called out (%s)",
			job.Name, job.ScheduledDate, removed, w.Type),
		CreatedAt: at,
	}
}

// ApprovalRecord builds the record for a pending leave request.
func ApprovalRecord(w leave.Window, at time.Time) Record {
	return Record{
		Kind:       KindLeaveNeedsApproval,
		EmployeeID: w.EmployeeID,
		WindowID:   w.ID,
		Message:    fmt.Sprintf("%s requested %s leave %s to %s", w.EmployeeID, w.Type, w.Start, w.End),
		CreatedAt:  at,
	}
}
