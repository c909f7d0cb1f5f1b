/*
weeklock.go - Week lock state machine

STATES:
  unlocked ──submit──▶ locked

  Initial state is unlocked. Locking is terminal: nothing in this package
  reverses it. An administrative unlock, if ever needed, belongs to a
  separate tool working directly against the store.

SUBMIT FLOW:
  1. Flush: save every pending entry individually (not atomic across the week).
  2. If any entry failed, stop. The week stays unlocked and resubmittable,
     and the caller gets a *FlushError naming each failed entry.
  3. Lock: mark the week locked and set the lock flag on all its entries.

ZERO-HOUR ENTRIES:
  A pending zero-hour entry with no persisted counterpart is omitted. A
  zero-hour edit to an existing entry is saved so the week total drops.
*/
package timecard

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
)

// FlushFailure is one pending entry that could not be saved during submit.
type FlushFailure struct {
	Input EntryInput
	Err   error
}

// FlushError reports the entries that blocked a submit.
type FlushError struct {
	EmployeeID generic.EmployeeID
	WeekEnding generic.TimePoint
	Failures   []FlushFailure
}

func (e *FlushError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = fmt.Sprintf("%s %s: %v", f.Input.Date, f.Input.Target, f.Err)
	}
	return fmt.Sprintf("week ending %s not submitted, %d entr(ies) failed: %s",
		e.WeekEnding, len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure so errors.Is finds their kinds.
func (e *FlushError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

type SubmitResult struct {
	EmployeeID generic.EmployeeID
	WeekEnding generic.TimePoint
	Saved      []generic.EntryID
	Omitted    int
	Summary    *WeekSummary
}

// SubmitWeek flushes pending entries and then locks the employee-week.
func (l *Ledger) SubmitWeek(
	ctx context.Context,
	emp generic.EmployeeID,
	weekEnding generic.TimePoint,
	pending []EntryInput,
) (*SubmitResult, error) {
	if emp == "" {
		return nil, generic.Invalid("employee_id", "required")
	}
	if !l.Week.IsWeekEnding(weekEnding) {
		return nil, generic.Invalid("week_ending", "%s is a %s, weeks end on %s",
			weekEnding, weekEnding.Weekday(), l.Week.End())
	}
	weekStart := l.Week.WeekStarting(weekEnding)

	locked, err := l.Store.IsWeekLocked(ctx, emp, weekEnding)
	if err != nil {
		return nil, fmt.Errorf("failed to read week lock: %w", err)
	}
	if locked {
		return nil, &generic.WeekLockedError{EmployeeID: emp, WeekEnding: weekEnding}
	}

	log := l.Log.WithFields(logrus.Fields{
		"employee_id": emp,
		"week_ending": weekEnding.String(),
	})

	result := &SubmitResult{EmployeeID: emp, WeekEnding: weekEnding}
	var failures []FlushFailure

	for _, in := range pending {
		if !in.Date.Within(weekStart, weekEnding) {
			failures = append(failures, FlushFailure{
				Input: in,
				Err:   generic.Invalid("date", "%s is outside the week %s..%s", in.Date, weekStart, weekEnding),
			})
			continue
		}

		entry := in.toEntry(emp)
		if err := entry.Validate(); err != nil {
			failures = append(failures, FlushFailure{Input: in, Err: err})
			continue
		}

		if in.Hours.IsZero() {
			existing, err := l.Store.FindEntry(ctx, emp, in.Date, in.Target)
			if err != nil {
				failures = append(failures, FlushFailure{Input: in, Err: err})
				continue
			}
			if existing == nil {
				result.Omitted++
				continue
			}
		}

		entry.UpdatedAt = l.Now().UTC()
		id, err := l.save(ctx, entry)
		if err != nil {
			failures = append(failures, FlushFailure{Input: in, Err: err})
			continue
		}
		result.Saved = append(result.Saved, id)
	}

	if len(failures) > 0 {
		log.WithField("failed", len(failures)).Warn("week submit aborted, entries failed to save")
		return result, &FlushError{EmployeeID: emp, WeekEnding: weekEnding, Failures: failures}
	}

	if err := l.Store.LockWeek(ctx, emp, weekStart, weekEnding); err != nil {
		return result, err
	}

	summary, err := l.WeekSummary(ctx, emp, weekEnding)
	if err != nil {
		// The lock is already applied; only the read-back failed.
		log.WithError(err).Warn("week locked but summary could not be loaded")
		return result, nil
	}
	result.Summary = summary

	log.WithFields(logrus.Fields{
		"saved":    len(result.Saved),
		"total":    summary.Total.String(),
		"overtime": summary.Overtime.String(),
	}).Info("week submitted and locked")
	return result, nil
}
