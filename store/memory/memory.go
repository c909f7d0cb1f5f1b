// Package memory provides an in-memory implementation of every store
// interface. It is used by tests and by the server's -db=mem mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/leave"
	"github.com/warp/field-ops/materials"
	"github.com/warp/field-ops/notify"
	"github.com/warp/field-ops/timecard"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	employees    map[generic.EmployeeID]bool
	vans         map[generic.VanID]bool
	jobs         map[generic.JobID]*generic.Job
	entries      map[entryKey]timecard.Entry
	locks        map[weekKey]bool
	windows      map[generic.WindowID]leave.Window
	allocations  map[generic.JobID][]materials.Allocation
	dispositions map[generic.JobID][]materials.Disposition
	outbox       []notify.Record
}

type entryKey struct {
	EmployeeID generic.EmployeeID
	Date       string
	Target     string
}

type weekKey struct {
	EmployeeID generic.EmployeeID
	WeekEnding string
}

func NewMemory() *Memory {
	return &Memory{
		employees:    make(map[generic.EmployeeID]bool),
		vans:         make(map[generic.VanID]bool),
		jobs:         make(map[generic.JobID]*generic.Job),
		entries:      make(map[entryKey]timecard.Entry),
		locks:        make(map[weekKey]bool),
		windows:      make(map[generic.WindowID]leave.Window),
		allocations:  make(map[generic.JobID][]materials.Allocation),
		dispositions: make(map[generic.JobID][]materials.Disposition),
	}
}

func keyOf(emp generic.EmployeeID, date generic.TimePoint, target timecard.Target) entryKey {
	return entryKey{EmployeeID: emp, Date: date.String(), Target: target.String()}
}

// =============================================================================
// SEED DATA
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, id generic.EmployeeID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[id] = true
	return nil
}

func (m *Memory) SaveVan(_ context.Context, id generic.VanID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vans[id] = true
	return nil
}

func (m *Memory) SaveJob(_ context.Context, job generic.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Status == "" {
		job.Status = generic.JobScheduled
	}
	job.Crew = append([]generic.EmployeeID(nil), job.Crew...)
	m.jobs[job.ID] = &job
	return nil
}

func (m *Memory) SaveAllocation(_ context.Context, a materials.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	allocs := m.allocations[a.JobID]
	for i := range allocs {
		if allocs[i].MaterialID == a.MaterialID {
			allocs[i] = a
			return nil
		}
	}
	m.allocations[a.JobID] = append(allocs, a)
	return nil
}

// =============================================================================
// DIRECTORY (generic.Directory)
// =============================================================================

func (m *Memory) EmployeeExists(_ context.Context, id generic.EmployeeID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.employees[id], nil
}

func (m *Memory) VanExists(_ context.Context, id generic.VanID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vans[id], nil
}

// =============================================================================
// JOB STORE (generic.JobStore)
// =============================================================================

func (m *Memory) GetJob(_ context.Context, id generic.JobID) (*generic.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, generic.NotFound("job", id)
	}
	return cloneJob(job), nil
}

func (m *Memory) JobsForEmployee(_ context.Context, emp generic.EmployeeID, from, to generic.TimePoint) ([]generic.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []generic.Job
	for _, job := range m.jobs {
		if job.ScheduledDate.Within(from, to) && job.HasCrewMember(emp) {
			result = append(result, *cloneJob(job))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ScheduledDate.Equal(result[j].ScheduledDate) {
			return result[i].ScheduledDate.Before(result[j].ScheduledDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) RemoveCrewMember(_ context.Context, id generic.JobID, emp generic.EmployeeID) (*generic.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, generic.NotFound("job", id)
	}
	crew := job.Crew[:0:0]
	for _, c := range job.Crew {
		if c != emp {
			crew = append(crew, c)
		}
	}
	job.Crew = crew
	return cloneJob(job), nil
}

func (m *Memory) CompleteJob(_ context.Context, id generic.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return generic.NotFound("job", id)
	}
	job.Status = generic.JobComplete
	return nil
}

func cloneJob(j *generic.Job) *generic.Job {
	c := *j
	c.Crew = append([]generic.EmployeeID(nil), j.Crew...)
	return &c
}

// =============================================================================
// TIME ENTRIES (timecard.Store)
// =============================================================================

func (m *Memory) FindEntry(_ context.Context, emp generic.EmployeeID, date generic.TimePoint, target timecard.Target) (*timecard.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[keyOf(emp, date, target)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// SaveEntry checks the lock and writes under the same mutex.
func (m *Memory) SaveEntry(_ context.Context, e timecard.Entry, _, weekEnding generic.TimePoint) (generic.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[weekKey{EmployeeID: e.EmployeeID, WeekEnding: weekEnding.String()}] {
		return "", &generic.WeekLockedError{EmployeeID: e.EmployeeID, WeekEnding: weekEnding}
	}

	k := keyOf(e.EmployeeID, e.Date, e.Target)
	if existing, ok := m.entries[k]; ok {
		if existing.Locked {
			return "", &generic.WeekLockedError{EmployeeID: e.EmployeeID, WeekEnding: weekEnding}
		}
		e.ID = existing.ID
	} else if e.ID == "" {
		e.ID = generic.EntryID(uuid.NewString())
	}
	e.Locked = false
	m.entries[k] = e
	return e.ID, nil
}

func (m *Memory) LoadEntries(_ context.Context, emp generic.EmployeeID, from, to generic.TimePoint) ([]timecard.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []timecard.Entry
	for _, e := range m.entries {
		if e.EmployeeID == emp && e.Date.Within(from, to) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Target.String() < result[j].Target.String()
	})
	return result, nil
}

func (m *Memory) IsWeekLocked(_ context.Context, emp generic.EmployeeID, weekEnding generic.TimePoint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locks[weekKey{EmployeeID: emp, WeekEnding: weekEnding.String()}], nil
}

func (m *Memory) LockWeek(_ context.Context, emp generic.EmployeeID, weekStart, weekEnding generic.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := weekKey{EmployeeID: emp, WeekEnding: weekEnding.String()}
	if m.locks[k] {
		return &generic.WeekLockedError{EmployeeID: emp, WeekEnding: weekEnding}
	}
	m.locks[k] = true
	for key, e := range m.entries {
		if e.EmployeeID == emp && e.Date.Within(weekStart, weekEnding) {
			e.Locked = true
			m.entries[key] = e
		}
	}
	return nil
}

// =============================================================================
// LEAVE WINDOWS (leave.Store)
// =============================================================================

func (m *Memory) CreateWindow(_ context.Context, w leave.Window) (generic.WindowID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		w.ID = generic.WindowID(uuid.NewString())
	}
	m.windows[w.ID] = w
	return w.ID, nil
}

func (m *Memory) GetWindow(_ context.Context, id generic.WindowID) (*leave.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	if !ok {
		return nil, generic.NotFound("window", id)
	}
	return &w, nil
}

func (m *Memory) ListWindows(_ context.Context, emp generic.EmployeeID) ([]leave.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []leave.Window
	for _, w := range m.windows {
		if w.EmployeeID == emp {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Start.Before(result[j].Start) ||
			(result[i].Start.Equal(result[j].Start) && result[i].CreatedAt.Before(result[j].CreatedAt))
	})
	return result, nil
}

func (m *Memory) MarkAutoRemoved(_ context.Context, id generic.WindowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return generic.NotFound("window", id)
	}
	w.AutoRemoved = true
	m.windows[id] = w
	return nil
}

func (m *Memory) ResolveWindow(_ context.Context, id generic.WindowID, status leave.Status, by generic.EmployeeID, at time.Time, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return generic.NotFound("window", id)
	}
	if w.IsResolved() {
		return generic.ErrAlreadyResolved
	}
	w.Status = status
	w.ResolvedBy = &by
	w.ResolvedAt = &at
	w.ResolveNote = note
	m.windows[id] = w
	return nil
}

// =============================================================================
// MATERIALS (materials.Store)
// =============================================================================

func (m *Memory) Allocations(_ context.Context, jobID generic.JobID) ([]materials.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]materials.Allocation(nil), m.allocations[jobID]...), nil
}

// RecordDispositions swaps the job's dispositions in one step.
func (m *Memory) RecordDispositions(_ context.Context, jobID generic.JobID, ds []materials.Disposition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recorded := make([]materials.Disposition, len(ds))
	for i, d := range ds {
		if d.ID == "" {
			d.ID = generic.DispositionID(uuid.NewString())
		}
		recorded[i] = d
	}
	m.dispositions[jobID] = recorded
	return nil
}

func (m *Memory) Dispositions(_ context.Context, jobID generic.JobID) ([]materials.Disposition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]materials.Disposition(nil), m.dispositions[jobID]...), nil
}

// =============================================================================
// OUTBOX (leave.Notifier)
// =============================================================================

func (m *Memory) JobNeedsReassignment(_ context.Context, job leave.AffectedJob, removed generic.EmployeeID, w leave.Window) error {
	return m.appendRecord(notify.ReassignmentRecord(job, removed, w, time.Now().UTC()))
}

func (m *Memory) LeaveNeedsApproval(_ context.Context, w leave.Window) error {
	return m.appendRecord(notify.ApprovalRecord(w, time.Now().UTC()))
}

func (m *Memory) appendRecord(r notify.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.NewString()
	m.outbox = append(m.outbox, r)
	return nil
}

// Notifications returns every outbox record in insertion order.
func (m *Memory) Notifications(_ context.Context) ([]notify.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]notify.Record(nil), m.outbox...), nil
}
