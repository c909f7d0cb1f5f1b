// Package timecard implements the weekly timecard: a ledger of hours per
// employee, date and job (or non-job category), gated by a one-way week lock.
package timecard

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/field-ops/generic"
)

// MaxEntryHours bounds a single entry.
var MaxEntryHours = decimal.NewFromInt(24)

// =============================================================================
// CATEGORY - Closed set of what hours are logged against
// =============================================================================

type Category string

const (
	CategoryJob      Category = "job"
	CategoryShop     Category = "shop"
	CategoryOffice   Category = "office"
	CategoryTraining Category = "training"
	CategoryTravel   Category = "travel"
	CategoryMeeting  Category = "meeting"
	CategoryOther    Category = "other"
)

// NonJobCategories is the fixed set of non-job categories.
var NonJobCategories = []Category{
	CategoryShop,
	CategoryOffice,
	CategoryTraining,
	CategoryTravel,
	CategoryMeeting,
	CategoryOther,
}

func (c Category) IsNonJob() bool {
	for _, nj := range NonJobCategories {
		if c == nj {
			return true
		}
	}
	return false
}

func (c Category) IsValid() bool { return c == CategoryJob || c.IsNonJob() }

// ParseCategory rejects anything outside the closed set.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", generic.Invalid("category", "unknown category %q", s)
	}
	return c, nil
}

// =============================================================================
// TARGET - Exactly one of a job reference or a non-job category
// =============================================================================

type Target struct {
	JobID    generic.JobID
	Category Category
}

// ForJob targets hours at a job.
func ForJob(id generic.JobID) Target { return Target{JobID: id, Category: CategoryJob} }

// NonJob targets hours at a non-job category.
func NonJob(c Category) Target { return Target{Category: c} }

func (t Target) IsJob() bool { return t.Category == CategoryJob }

// Validate enforces the job XOR non-job invariant.
func (t Target) Validate() error {
	switch {
	case t.Category == CategoryJob && t.JobID == "":
		return generic.Invalid("job_id", "job entries require a job reference")
	case t.Category == CategoryJob:
		return nil
	case t.Category.IsNonJob() && t.JobID != "":
		return generic.Invalid("job_id", "%s entries cannot reference a job", t.Category)
	case t.Category.IsNonJob():
		return nil
	case t.Category == "" && t.JobID == "":
		return generic.Invalid("category", "either a job or a non-job category is required")
	default:
		return generic.Invalid("category", "unknown category %q", t.Category)
	}
}

func (t Target) String() string {
	if t.IsJob() {
		return "job:" + string(t.JobID)
	}
	return string(t.Category)
}

// =============================================================================
// ENTRY
// =============================================================================

// Entry is the hours one employee logged on one date against one target.
// ID is empty until the entry is persisted.
type Entry struct {
	ID         generic.EntryID
	EmployeeID generic.EmployeeID
	Date       generic.TimePoint
	Target     Target
	Hours      decimal.Decimal
	Notes      string
	Locked     bool
	UpdatedAt  time.Time
}

// Validate checks the entry's shape. It never consults the lock.
func (e Entry) Validate() error {
	if e.EmployeeID == "" {
		return generic.Invalid("employee_id", "required")
	}
	if e.Date.IsZero() {
		return generic.Invalid("date", "required")
	}
	if err := generic.CheckScale("hours", e.Hours); err != nil {
		return err
	}
	if e.Hours.IsNegative() {
		return generic.Invalid("hours", "must not be negative, got %s", e.Hours)
	}
	if e.Hours.GreaterThan(MaxEntryHours) {
		return generic.Invalid("hours", "must not exceed %s, got %s", MaxEntryHours, e.Hours)
	}
	return e.Target.Validate()
}

// EntryInput is a pending, not yet persisted edit from the timecard grid.
type EntryInput struct {
	Date   generic.TimePoint
	Target Target
	Hours  decimal.Decimal
	Notes  string
}

func (in EntryInput) toEntry(emp generic.EmployeeID) Entry {
	return Entry{
		EmployeeID: emp,
		Date:       in.Date,
		Target:     in.Target,
		Hours:      in.Hours,
		Notes:      in.Notes,
	}
}
