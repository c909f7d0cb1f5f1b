package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/leave"
	"github.com/warp/field-ops/notify"
	"github.com/warp/field-ops/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Wednesday 2026-03-11.
var (
	today    = generic.NewTimePoint(2026, time.March, 11)
	tomorrow = today.AddDays(1)
	manager  = generic.Actor{EmployeeID: "mgr-1", Role: generic.RoleManager}
)

// flakyJobs fails crew removal for the listed jobs.
type flakyJobs struct {
	*memory.Memory
	fail map[generic.JobID]bool
}

func (f *flakyJobs) RemoveCrewMember(ctx context.Context, id generic.JobID, emp generic.EmployeeID) (*generic.Job, error) {
	if f.fail[id] {
		return nil, errors.New("schedule service unavailable")
	}
	return f.Memory.RemoveCrewMember(ctx, id, emp)
}

func newTestProcessor(t *testing.T) (*leave.Processor, *memory.Memory) {
	mem := memory.NewMemory()
	ctx := context.Background()
	for _, id := range []generic.EmployeeID{"emp-1", "emp-2", "mgr-1"} {
		require.NoError(t, mem.SaveEmployee(ctx, id, ""))
	}

	p := leave.NewProcessor(mem, mem, mem)
	p.Directory = mem
	p.Now = func() time.Time { return time.Date(2026, 3, 11, 6, 30, 0, 0, time.UTC) }
	return p, mem
}

func seedJob(t *testing.T, mem *memory.Memory, id generic.JobID, date generic.TimePoint, crew ...generic.EmployeeID) {
	t.Helper()
	require.NoError(t, mem.SaveJob(context.Background(), generic.Job{
		ID:            id,
		Name:          "Job " + string(id),
		ScheduledDate: date,
		Crew:          crew,
	}))
}

// =============================================================================
// CALL-OUT
// =============================================================================

func TestCallOut_RemovesFromCrewAndFlagsEmptyJobs(t *testing.T) {
	p, mem := newTestProcessor(t)
	ctx := context.Background()

	// GIVEN: emp-1 is on two jobs today and one tomorrow
	seedJob(t, mem, "job-shared", today, "emp-1", "emp-2")
	seedJob(t, mem, "job-solo", today, "emp-1")
	seedJob(t, mem, "job-later", tomorrow, "emp-1")

	// WHEN: emp-1 calls out sick for today
	result, err := p.CallOut(ctx, "emp-1", today, leave.TypeSick, "flu", true)
	require.NoError(t, err)

	// THEN: The window is auto-approved and flagged
	assert.Equal(t, leave.StatusApproved, result.Window.Status)
	assert.True(t, result.Window.AutoRemoved)
	assert.NotEmpty(t, result.Window.ID)

	// AND: Both of today's jobs lost emp-1
	require.Len(t, result.AffectedJobs, 2)
	byID := map[generic.JobID]leave.AffectedJob{}
	for _, a := range result.AffectedJobs {
		byID[a.JobID] = a
	}
	assert.Equal(t, 1, byID["job-shared"].RemainingCrewCount)
	assert.False(t, byID["job-shared"].NeedsReassignment)
	assert.Equal(t, 0, byID["job-solo"].RemainingCrewCount)
	assert.True(t, byID["job-solo"].NeedsReassignment)

	// AND: Only the emptied job notifies the manager
	records, err := mem.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, notify.KindJobNeedsReassignment, records[0].Kind)
	assert.Equal(t, generic.JobID("job-solo"), records[0].JobID)

	// AND: Tomorrow's job is untouched
	later, err := mem.GetJob(ctx, "job-later")
	require.NoError(t, err)
	assert.Equal(t, []generic.EmployeeID{"emp-1"}, later.Crew)

	windows, err := p.Windows(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.True(t, windows[0].AutoRemoved)
}

func TestCallOut_WithoutScheduleRemoval(t *testing.T) {
	p, mem := newTestProcessor(t)
	ctx := context.Background()
	seedJob(t, mem, "job-1", today, "emp-1")

	result, err := p.CallOut(ctx, "emp-1", today, leave.TypePersonal, "", false)
	require.NoError(t, err)
	assert.Empty(t, result.AffectedJobs)
	assert.False(t, result.Window.AutoRemoved)

	job, err := mem.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []generic.EmployeeID{"emp-1"}, job.Crew)
}

func TestCallOut_SkipsInactiveJobs(t *testing.T) {
	p, mem := newTestProcessor(t)
	ctx := context.Background()
	seedJob(t, mem, "job-done", today, "emp-1")
	require.NoError(t, mem.CompleteJob(ctx, "job-done"))

	result, err := p.CallOut(ctx, "emp-1", today, leave.TypeSick, "", true)
	require.NoError(t, err)
	assert.Empty(t, result.AffectedJobs)
}

func TestCallOut_PartialCascade(t *testing.T) {
	p, mem := newTestProcessor(t)
	ctx := context.Background()
	p.Jobs = &flakyJobs{Memory: mem, fail: map[generic.JobID]bool{"job-b": true}}

	seedJob(t, mem, "job-a", today, "emp-1", "emp-2")
	seedJob(t, mem, "job-b", today, "emp-1", "emp-2")

	// WHEN: One of two crew updates fails
	result, err := p.CallOut(ctx, "emp-1", today, leave.TypeSick, "", true)

	// THEN: The error is partial and the result still carries what succeeded
	var partial *generic.PartialCascadeError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, generic.JobID("job-b"), partial.Failures[0].JobID)

	require.NotNil(t, result)
	require.Len(t, result.AffectedJobs, 1)
	assert.Equal(t, generic.JobID("job-a"), result.AffectedJobs[0].JobID)

	// AND: The window is recorded regardless
	windows, err := p.Windows(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, result.Window.ID, windows[0].ID)
	assert.Equal(t, partial.WindowID, windows[0].ID)

	job, err := mem.GetJob(ctx, "job-b")
	require.NoError(t, err)
	assert.Len(t, job.Crew, 2)
}

func TestCallOut_Validation(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()

	tests := []struct {
		name string
		emp  generic.EmployeeID
		date generic.TimePoint
		typ  leave.Type
		want error
	}{
		{"future date", "emp-1", tomorrow, leave.TypeSick, generic.ErrValidation},
		{"unknown type", "emp-1", today, "holiday", generic.ErrValidation},
		{"missing employee", "", today, leave.TypeSick, generic.ErrValidation},
		{"unknown employee", "emp-9", today, leave.TypeSick, generic.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CallOut(ctx, tt.emp, tt.date, tt.typ, "", true)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// A past date is accepted.
	_, err := p.CallOut(ctx, "emp-1", today.AddDays(-2), leave.TypeSick, "", true)
	assert.NoError(t, err)
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func TestRequestLeave_PendingAndNotified(t *testing.T) {
	p, mem := newTestProcessor(t)
	ctx := context.Background()
	seedJob(t, mem, "job-1", tomorrow, "emp-1")

	w, err := p.RequestLeave(ctx, "emp-1", tomorrow, tomorrow.AddDays(4), leave.TypeVacation, "trip")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, w.Status)

	// THEN: The manager is asked to approve and the schedule is unchanged
	records, err := mem.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, notify.KindLeaveNeedsApproval, records[0].Kind)
	assert.Equal(t, w.ID, records[0].WindowID)

	job, err := mem.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []generic.EmployeeID{"emp-1"}, job.Crew)
}

func TestRequestLeave_InvalidRanges(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end generic.TimePoint
	}{
		{"end before start", tomorrow.AddDays(3), tomorrow},
		{"starts today", today, tomorrow},
		{"in the past", today.AddDays(-3), today.AddDays(-1)},
		{"missing end", tomorrow, generic.TimePoint{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.RequestLeave(ctx, "emp-1", tt.start, tt.end, leave.TypeVacation, "")
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}

	// THEN: No window was created
	windows, err := p.Windows(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestResolve_OnlyOnce(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()

	w, err := p.RequestLeave(ctx, "emp-1", tomorrow, tomorrow, leave.TypePersonal, "")
	require.NoError(t, err)

	// WHEN: A non-manager tries to resolve it
	_, err = p.Resolve(ctx, w.ID, true, generic.Actor{EmployeeID: "emp-2", Role: generic.RoleEmployee}, "")
	assert.ErrorIs(t, err, generic.ErrValidation)

	// WHEN: The manager approves
	resolved, err := p.Resolve(ctx, w.ID, true, manager, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, generic.EmployeeID("mgr-1"), *resolved.ResolvedBy)
	assert.Equal(t, "enjoy", resolved.ResolveNote)

	// THEN: A second decision is refused and the first one stands
	_, err = p.Resolve(ctx, w.ID, false, manager, "")
	assert.ErrorIs(t, err, generic.ErrAlreadyResolved)

	windows, err := p.Windows(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, leave.StatusApproved, windows[0].Status)

	_, err = p.Resolve(ctx, "win-404", true, manager, "")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
