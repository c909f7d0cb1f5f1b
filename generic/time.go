package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day abstraction
// =============================================================================

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

// TimePoint is a calendar day. The clock time of the wrapped value is ignored
// by every comparison.
type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates t to its calendar day (in t's own location).
func DayOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, &ValidationError{Field: "date", Message: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return DayOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Within reports whether tp falls in [from, to].
func (tp TimePoint) Within(from, to TimePoint) bool {
	return from.BeforeOrEqual(tp) && tp.BeforeOrEqual(to)
}

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Weekday() time.Weekday { return tp.normalize().Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }
func (tp TimePoint) String() string        { return tp.normalize().Format(DateLayout) }

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// WEEK POLICY - The single source of the week boundary
// =============================================================================

// WeekPolicy defines which weekday opens a timecard week. Week lock, ledger
// totals and overtime classification all derive their boundary from it.
type WeekPolicy struct {
	Start time.Weekday
}

// DefaultWeekPolicy is the Monday-Sunday week.
var DefaultWeekPolicy = WeekPolicy{Start: time.Monday}

// End is the weekday that closes the week.
func (p WeekPolicy) End() time.Weekday {
	return (p.Start + 6) % 7
}

// WeekStarting returns the first day of the week containing d.
func (p WeekPolicy) WeekStarting(d TimePoint) TimePoint {
	offset := (int(d.Weekday()) - int(p.Start) + 7) % 7
	return d.AddDays(-offset)
}

// WeekEnding returns the last day of the week containing d.
func (p WeekPolicy) WeekEnding(d TimePoint) TimePoint {
	return p.WeekStarting(d).AddDays(6)
}

// IsWeekEnding reports whether d is a valid week-ending day.
func (p WeekPolicy) IsWeekEnding(d TimePoint) bool {
	return d.Weekday() == p.End()
}

// WeekDates returns the seven days of the week that closes on weekEnding.
func (p WeekPolicy) WeekDates(weekEnding TimePoint) []TimePoint {
	start := weekEnding.AddDays(-6)
	dates := make([]TimePoint, 7)
	for i := range dates {
		dates[i] = start.AddDays(i)
	}
	return dates
}

// ParseWeekday accepts English weekday names ("monday", "Sun").
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return time.Sunday, Invalid("weekday", "unknown weekday %q", s)
}
