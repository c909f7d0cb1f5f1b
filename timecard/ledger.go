/*
ledger.go - Time entry ledger

PURPOSE:
  Records hours per employee, per date, per job or non-job category, and
  computes the derived views payroll and the timecard screen need: totals per
  job, per day, per week, and the regular/overtime split.

INVARIANTS:
  1. Exactly one of {job reference, non-job category} is set on every entry.
  2. 0 <= hours <= 24 per entry.
  3. No write lands in a locked employee-week. The ledger checks the lock
     before writing and the store re-checks it inside the same unit of work.

DERIVED VIEWS (read-time only, never stored):
  - JobTotals:   sum of hours per job reference
  - DailyTotal:  sum of all entries (job + non-job) on a date
  - WeekTotal:   sum of the seven daily totals of the week
  - Overtime:    hours beyond the threshold (40) in the same week WeekLock uses

SEE ALSO:
  - weeklock.go: Submit (flush then lock)
  - generic/time.go: WeekPolicy, the only place the week boundary is defined
*/
package timecard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
)

// DefaultOvertimeThreshold is the weekly hours after which time is overtime.
var DefaultOvertimeThreshold = decimal.NewFromInt(40)

// =============================================================================
// STORE - Persistence contract for entries and week locks
// =============================================================================

type Store interface {
	// FindEntry returns the entry for (emp, date, target), or nil.
	FindEntry(ctx context.Context, emp generic.EmployeeID, date generic.TimePoint, target Target) (*Entry, error)

	// SaveEntry inserts or updates the entry keyed by (employee, date, target).
	// The lock of [weekStart, weekEnding] is re-checked in the same unit of
	// work; a locked week yields a *generic.WeekLockedError and no write.
	SaveEntry(ctx context.Context, e Entry, weekStart, weekEnding generic.TimePoint) (generic.EntryID, error)

	// LoadEntries returns the employee's entries in [from, to] ordered by date.
	LoadEntries(ctx context.Context, emp generic.EmployeeID, from, to generic.TimePoint) ([]Entry, error)

	IsWeekLocked(ctx context.Context, emp generic.EmployeeID, weekEnding generic.TimePoint) (bool, error)

	// LockWeek records the lock and sets the lock flag on every entry in
	// [weekStart, weekEnding]. Locking an already locked week is a
	// *generic.WeekLockedError.
	LockWeek(ctx context.Context, emp generic.EmployeeID, weekStart, weekEnding generic.TimePoint) error
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store Store
	// Directory and Jobs are optional; when set, employee and job references
	// are resolved before writing.
	Directory         generic.Directory
	Jobs              generic.JobStore
	Week              generic.WeekPolicy
	OvertimeThreshold decimal.Decimal
	Log               *logrus.Entry
	Now               func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		Store:             store,
		Week:              generic.DefaultWeekPolicy,
		OvertimeThreshold: DefaultOvertimeThreshold,
		Log:               logrus.NewEntry(logrus.StandardLogger()),
		Now:               time.Now,
	}
}

// Upsert creates or updates the entry for (emp, date, target).
// Returns *generic.WeekLockedError if the week is already submitted.
func (l *Ledger) Upsert(
	ctx context.Context,
	emp generic.EmployeeID,
	date generic.TimePoint,
	target Target,
	hours decimal.Decimal,
	notes string,
) (generic.EntryID, error) {
	entry := Entry{
		EmployeeID: emp,
		Date:       date,
		Target:     target,
		Hours:      hours,
		Notes:      notes,
		UpdatedAt:  l.Now().UTC(),
	}
	return l.save(ctx, entry)
}

func (l *Ledger) save(ctx context.Context, entry Entry) (generic.EntryID, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if err := l.resolveReferences(ctx, entry); err != nil {
		return "", err
	}

	weekStart := l.Week.WeekStarting(entry.Date)
	weekEnding := l.Week.WeekEnding(entry.Date)

	locked, err := l.Store.IsWeekLocked(ctx, entry.EmployeeID, weekEnding)
	if err != nil {
		return "", fmt.Errorf("failed to read week lock: %w", err)
	}
	if locked {
		return "", &generic.WeekLockedError{EmployeeID: entry.EmployeeID, WeekEnding: weekEnding}
	}

	id, err := l.Store.SaveEntry(ctx, entry, weekStart, weekEnding)
	if err != nil {
		return "", err
	}

	l.Log.WithFields(logrus.Fields{
		"employee_id": entry.EmployeeID,
		"date":        entry.Date.String(),
		"target":      entry.Target.String(),
		"hours":       entry.Hours.String(),
		"entry_id":    id,
	}).Debug("time entry saved")
	return id, nil
}

func (l *Ledger) resolveReferences(ctx context.Context, entry Entry) error {
	if l.Directory != nil {
		ok, err := l.Directory.EmployeeExists(ctx, entry.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to resolve employee: %w", err)
		}
		if !ok {
			return generic.NotFound("employee", entry.EmployeeID)
		}
	}
	if l.Jobs != nil && entry.Target.IsJob() {
		if _, err := l.Jobs.GetJob(ctx, entry.Target.JobID); err != nil {
			return err
		}
	}
	return nil
}

// List returns the employee's entries in [from, to].
func (l *Ledger) List(ctx context.Context, emp generic.EmployeeID, from, to generic.TimePoint) ([]Entry, error) {
	if from.After(to) {
		return nil, generic.Invalid("range", "from %s is after to %s", from, to)
	}
	return l.Store.LoadEntries(ctx, emp, from, to)
}

// IsLocked reports whether the week containing date is locked for emp.
func (l *Ledger) IsLocked(ctx context.Context, emp generic.EmployeeID, date generic.TimePoint) (bool, error) {
	return l.Store.IsWeekLocked(ctx, emp, l.Week.WeekEnding(date))
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// JobTotals sums hours per job reference. Non-job entries are ignored.
func JobTotals(entries []Entry) map[generic.JobID]decimal.Decimal {
	totals := make(map[generic.JobID]decimal.Decimal)
	for _, e := range entries {
		if !e.Target.IsJob() {
			continue
		}
		totals[e.Target.JobID] = totals[e.Target.JobID].Add(e.Hours)
	}
	return totals
}

// CategoryTotals sums hours per non-job category.
func CategoryTotals(entries []Entry) map[Category]decimal.Decimal {
	totals := make(map[Category]decimal.Decimal)
	for _, e := range entries {
		if e.Target.IsJob() {
			continue
		}
		totals[e.Target.Category] = totals[e.Target.Category].Add(e.Hours)
	}
	return totals
}

// DailyTotal sums job and non-job hours on date.
func DailyTotal(entries []Entry, date generic.TimePoint) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Date.Equal(date) {
			total = total.Add(e.Hours)
		}
	}
	return total
}

// WeekTotal sums the daily totals of the week closing on weekEnding.
func WeekTotal(entries []Entry, week generic.WeekPolicy, weekEnding generic.TimePoint) decimal.Decimal {
	days := week.WeekDates(weekEnding)
	daily := make([]decimal.Decimal, len(days))
	for i, d := range days {
		daily[i] = DailyTotal(entries, d)
	}
	return generic.Sum(daily...)
}

// SplitOvertime classifies a week total into regular and overtime hours.
func SplitOvertime(total, threshold decimal.Decimal) (regular, overtime decimal.Decimal) {
	if total.LessThanOrEqual(threshold) {
		return total, decimal.Zero
	}
	return threshold, total.Sub(threshold)
}

// =============================================================================
// WEEK SUMMARY
// =============================================================================

type DayTotal struct {
	Date  generic.TimePoint
	Hours decimal.Decimal
}

// WeekSummary is the timecard for one employee-week.
type WeekSummary struct {
	EmployeeID generic.EmployeeID
	WeekStart  generic.TimePoint
	WeekEnding generic.TimePoint
	Locked     bool
	Entries    []Entry
	Days       []DayTotal
	Jobs       map[generic.JobID]decimal.Decimal
	Categories map[Category]decimal.Decimal
	Total      decimal.Decimal
	Regular    decimal.Decimal
	Overtime   decimal.Decimal
}

// WeekSummary loads the week containing date and computes its totals.
func (l *Ledger) WeekSummary(ctx context.Context, emp generic.EmployeeID, date generic.TimePoint) (*WeekSummary, error) {
	weekStart := l.Week.WeekStarting(date)
	weekEnding := l.Week.WeekEnding(date)

	entries, err := l.Store.LoadEntries(ctx, emp, weekStart, weekEnding)
	if err != nil {
		return nil, fmt.Errorf("failed to load week: %w", err)
	}
	locked, err := l.Store.IsWeekLocked(ctx, emp, weekEnding)
	if err != nil {
		return nil, fmt.Errorf("failed to read week lock: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	summary := &WeekSummary{
		EmployeeID: emp,
		WeekStart:  weekStart,
		WeekEnding: weekEnding,
		Locked:     locked,
		Entries:    entries,
		Jobs:       JobTotals(entries),
		Categories: CategoryTotals(entries),
	}
	for _, d := range l.Week.WeekDates(weekEnding) {
		summary.Days = append(summary.Days, DayTotal{Date: d, Hours: DailyTotal(entries, d)})
	}
	summary.Total = WeekTotal(entries, l.Week, weekEnding)
	summary.Regular, summary.Overtime = SplitOvertime(summary.Total, l.OvertimeThreshold)
	return summary, nil
}
