package timecard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/timecard"
)

func TestSubmitWeek_LocksTheWeek(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: Saved hours plus one pending edit
	_, err := ledger.Upsert(ctx, "emp-1", monday, timecard.ForJob("job-1"), hours("8"), "")
	require.NoError(t, err)
	pending := []timecard.EntryInput{
		{Date: wednesday, Target: timecard.NonJob(timecard.CategoryOffice), Hours: hours("2")},
	}

	// WHEN: The week is submitted
	result, err := ledger.SubmitWeek(ctx, "emp-1", sunday, pending)
	require.NoError(t, err)

	// THEN: The pending entry was flushed before the lock
	assert.Len(t, result.Saved, 1)
	require.NotNil(t, result.Summary)
	assert.True(t, result.Summary.Locked)
	assert.Equal(t, "10", result.Summary.Total.String())

	locked, err := ledger.IsLocked(ctx, "emp-1", wednesday)
	require.NoError(t, err)
	assert.True(t, locked)

	entries, err := store.LoadEntries(ctx, "emp-1", monday, sunday)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.Locked, "entry %s", e.Target)
	}
}

func TestSubmitWeek_RejectsLaterMutation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.SubmitWeek(ctx, "emp-1", sunday, nil)
	require.NoError(t, err)

	// WHEN: Any day of the locked week is edited
	_, err = ledger.Upsert(ctx, "emp-1", monday, timecard.ForJob("job-1"), hours("1"), "")

	// THEN: WeekLocked, naming the week
	var locked *generic.WeekLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, sunday.String(), locked.WeekEnding.String())
	assert.Equal(t, generic.EmployeeID("emp-1"), locked.EmployeeID)

	// AND: Submitting again is also WeekLocked
	_, err = ledger.SubmitWeek(ctx, "emp-1", sunday, nil)
	assert.ErrorIs(t, err, generic.ErrWeekLocked)

	// AND: The following week and other employees are unaffected
	_, err = ledger.Upsert(ctx, "emp-1", sunday.AddDays(1), timecard.ForJob("job-1"), hours("1"), "")
	assert.NoError(t, err)
	_, err = ledger.Upsert(ctx, "emp-2", monday, timecard.ForJob("job-1"), hours("1"), "")
	assert.NoError(t, err)
}

func TestSubmitWeek_NotAWeekEnding(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.SubmitWeek(context.Background(), "emp-1", wednesday, nil)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestSubmitWeek_FlushFailureLeavesWeekUnlocked(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: One good and two bad pending entries
	pending := []timecard.EntryInput{
		{Date: monday, Target: timecard.NonJob(timecard.CategoryShop), Hours: hours("3")},
		{Date: wednesday, Target: timecard.NonJob(timecard.CategoryShop), Hours: hours("30")},
		{Date: sunday.AddDays(1), Target: timecard.NonJob(timecard.CategoryShop), Hours: hours("1")},
	}

	// WHEN: Submitting
	result, err := ledger.SubmitWeek(ctx, "emp-1", sunday, pending)

	// THEN: The flush error lists both failures and the week stays open
	var flush *timecard.FlushError
	require.ErrorAs(t, err, &flush)
	assert.Len(t, flush.Failures, 2)
	assert.True(t, errors.Is(err, generic.ErrValidation))
	require.NotNil(t, result)
	assert.Len(t, result.Saved, 1)

	locked, err := ledger.IsLocked(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.False(t, locked)

	// AND: The employee can fix the entry and submit again
	_, err = ledger.SubmitWeek(ctx, "emp-1", sunday, pending[:1])
	assert.NoError(t, err)
}

func TestSubmitWeek_ZeroHourPendingEntries(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Upsert(ctx, "emp-1", monday, timecard.ForJob("job-1"), hours("5"), "")
	require.NoError(t, err)

	pending := []timecard.EntryInput{
		// Clears an existing entry.
		{Date: monday, Target: timecard.ForJob("job-1"), Hours: hours("0")},
		// Never existed, nothing to write.
		{Date: wednesday, Target: timecard.NonJob(timecard.CategoryMeeting), Hours: hours("0")},
	}
	result, err := ledger.SubmitWeek(ctx, "emp-1", sunday, pending)
	require.NoError(t, err)
	assert.Len(t, result.Saved, 1)
	assert.Equal(t, 1, result.Omitted)

	entries, err := store.LoadEntries(ctx, "emp-1", monday, sunday)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Hours.IsZero())
}

func TestSubmitWeek_CustomWeekStart(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ledger.Week = generic.WeekPolicy{Start: time.Sunday}
	ctx := context.Background()

	// GIVEN: A Sunday-Saturday week; 2026-03-14 is a Saturday
	saturday := generic.NewTimePoint(2026, time.March, 14)
	_, err := ledger.SubmitWeek(ctx, "emp-1", sunday, nil)
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = ledger.SubmitWeek(ctx, "emp-1", saturday, nil)
	require.NoError(t, err)

	// THEN: Sunday 2026-03-08 belongs to the locked week, Sunday 2026-03-15 does not
	_, err = ledger.Upsert(ctx, "emp-1", monday.AddDays(-1), timecard.NonJob(timecard.CategoryShop), hours("1"), "")
	assert.ErrorIs(t, err, generic.ErrWeekLocked)
	_, err = ledger.Upsert(ctx, "emp-1", sunday, timecard.NonJob(timecard.CategoryShop), hours("1"), "")
	assert.NoError(t, err)
}

func TestSubmitWeek_LockSurvivesWeekStartChange(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: A submitted Monday-Sunday week with 8 hours on Wednesday
	pending := []timecard.EntryInput{
		{Date: wednesday, Target: timecard.ForJob("job-1"), Hours: hours("8")},
	}
	_, err := ledger.SubmitWeek(ctx, "emp-1", sunday, pending)
	require.NoError(t, err)

	// WHEN: The week start moves to Sunday and the entry is edited
	ledger.Week = generic.WeekPolicy{Start: time.Sunday}
	_, err = ledger.Upsert(ctx, "emp-1", wednesday, timecard.ForJob("job-1"), hours("20"), "")

	// THEN: The locked entry is refused and left as it was
	assert.ErrorIs(t, err, generic.ErrWeekLocked)
	entry, err := store.FindEntry(ctx, "emp-1", wednesday, timecard.ForJob("job-1"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "8", entry.Hours.String())
	assert.True(t, entry.Locked)
}

func TestSubmitWeek_ZeroHourEntryWithBadTarget(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	pending := []timecard.EntryInput{
		{Date: wednesday, Target: timecard.NonJob("bogus"), Hours: hours("0")},
	}
	result, err := ledger.SubmitWeek(ctx, "emp-1", sunday, pending)

	// THEN: The entry is a flush failure, not silently omitted
	var flush *timecard.FlushError
	require.ErrorAs(t, err, &flush)
	assert.Len(t, flush.Failures, 1)
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Equal(t, 0, result.Omitted)

	locked, err := ledger.IsLocked(ctx, "emp-1", wednesday)
	require.NoError(t, err)
	assert.False(t, locked)
}
