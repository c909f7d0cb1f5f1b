/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Time entry upsert, week summary and submit/lock
- Call-out cascade and manager notifications
- Leave request lifecycle
- Material reconcile gating job completion
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/store/memory"
)

// Wednesday; the week runs Monday 2026-03-09 to Sunday 2026-03-15.
var testNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	router  *chi.Mux
	store   *memory.Memory
	handler *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewMemory()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := NewHandler(store, logger)
	h.SetClock(func() time.Time { return testNow })
	require.NoError(t, h.LoadScenarioByID(context.Background(), DefaultScenario))

	return &testEnv{router: NewRouter(h, []string{"*"}), store: store, handler: h}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func as(emp string) map[string]string {
	return map[string]string{HeaderEmployeeID: emp}
}

func asManager(emp string) map[string]string {
	return map[string]string{HeaderEmployeeID: emp, HeaderRole: "manager"}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func TestUpsertEntry_ThenWeekSummary(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: Bob logs 6 hours on job-100
	rec := env.do(t, http.MethodPut, "/api/employees/emp-bob/entries", map[string]any{
		"date":   "2026-03-11",
		"job_id": "job-100",
		"hours":  "6",
	}, as("emp-bob"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decodeBody[EntryDTO](t, rec)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "job", entry.Category)

	// WHEN: He edits the same entry
	rec = env.do(t, http.MethodPut, "/api/employees/emp-bob/entries", map[string]any{
		"date":   "2026-03-11",
		"job_id": "job-100",
		"hours":  "7.5",
	}, as("emp-bob"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, entry.ID, decodeBody[EntryDTO](t, rec).ID)

	// THEN: The week shows one entry of 7.5 hours
	rec = env.do(t, http.MethodGet, "/api/employees/emp-bob/weeks/2026-03-13", nil, as("emp-bob"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[WeekSummaryDTO](t, rec)
	assert.Equal(t, "2026-03-09", summary.WeekStart)
	assert.Equal(t, "2026-03-15", summary.WeekEnding)
	assert.Len(t, summary.Entries, 1)
	assert.Len(t, summary.Days, 7)
	assert.Equal(t, "7.5", summary.Total.String())
	assert.Equal(t, "7.5", summary.Jobs["job-100"].String())
	assert.False(t, summary.Locked)
}

func TestUpsertEntry_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		path    string
		body    map[string]any
		headers map[string]string
		status  int
	}{
		{
			name:    "job and category together",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "job_id": "job-100", "category": "shop", "hours": 1},
			headers: as("emp-bob"),
			status:  http.StatusBadRequest,
		},
		{
			name:    "neither job nor category",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "hours": 1},
			headers: as("emp-bob"),
			status:  http.StatusBadRequest,
		},
		{
			name:    "more than a day",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "category": "shop", "hours": 25},
			headers: as("emp-bob"),
			status:  http.StatusBadRequest,
		},
		{
			name:    "missing hours",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "category": "shop"},
			headers: as("emp-bob"),
			status:  http.StatusBadRequest,
		},
		{
			name:    "unknown job",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "job_id": "job-999", "hours": 1},
			headers: as("emp-bob"),
			status:  http.StatusNotFound,
		},
		{
			name:    "too many decimal places",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "category": "shop", "hours": "1e-20000000"},
			headers: as("emp-bob"),
			status:  http.StatusBadRequest,
		},
		{
			name:    "no session",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "category": "shop", "hours": 1},
			headers: nil,
			status:  http.StatusUnauthorized,
		},
		{
			name:    "manager for an employee",
			path:    "/api/employees/emp-bob/entries",
			body:    map[string]any{"date": "2026-03-11", "category": "office", "hours": 1},
			headers: asManager("mgr-1"),
			status:  http.StatusOK,
		},
		{
			name:    "someone else's timecard",
			path:    "/api/employees/emp-alice/entries",
			body:    map[string]any{"date": "2026-03-11", "category": "shop", "hours": 1},
			headers: as("emp-bob"),
			status:  http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestListEntries_DefaultsToCurrentWeek(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/employees/emp-alice/entries", nil, as("emp-alice"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decodeBody[[]EntryDTO](t, rec)
	assert.Len(t, entries, 2)

	rec = env.do(t, http.MethodGet, "/api/employees/emp-alice/entries?from=2026-03-12&to=2026-03-11", nil, as("emp-alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// WEEK LOCK
// =============================================================================

func TestSubmitWeek_LocksAndRejectsEdits(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: Alice has 5.5 hours logged plus one pending edit
	body := map[string]any{"entries": []map[string]any{
		{"date": "2026-03-12", "category": "training", "hours": "2"},
		{"date": "2026-03-13", "category": "office", "hours": 0},
	}}

	// WHEN: She submits the week
	rec := env.do(t, http.MethodPost, "/api/employees/emp-alice/weeks/2026-03-15/submit", body, as("emp-alice"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[SubmitResultDTO](t, rec)

	// THEN: The pending entry is saved, the zero-hour new entry omitted
	assert.Len(t, result.Saved, 1)
	assert.Equal(t, 1, result.Omitted)
	require.NotNil(t, result.Summary)
	assert.True(t, result.Summary.Locked)
	assert.Equal(t, "7.5", result.Summary.Total.String())

	// AND: Further edits and a second submit are refused
	rec = env.do(t, http.MethodPut, "/api/employees/emp-alice/entries", map[string]any{
		"date": "2026-03-11", "category": "shop", "hours": 3,
	}, as("emp-alice"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/employees/emp-alice/weeks/2026-03-15/submit", nil, as("emp-alice"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: The next week is still open
	rec = env.do(t, http.MethodPut, "/api/employees/emp-alice/entries", map[string]any{
		"date": "2026-03-16", "category": "shop", "hours": 3,
	}, as("emp-alice"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitWeek_NotAWeekEndingDate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-alice/weeks/2026-03-14/submit", nil, as("emp-alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitWeek_FlushFailureLeavesWeekOpen(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: One pending entry falls outside the week
	body := map[string]any{"entries": []map[string]any{
		{"date": "2026-03-12", "category": "training", "hours": "2"},
		{"date": "2026-03-16", "category": "office", "hours": "1"},
	}}

	// WHEN: Submitting
	rec := env.do(t, http.MethodPost, "/api/employees/emp-alice/weeks/2026-03-15/submit", body, as("emp-alice"))

	// THEN: Submit fails with the failing entry listed, and the week stays unlocked
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	resp := decodeBody[ErrorResponse](t, rec)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "2026-03-16", resp.Failures[0].Date)

	locked, err := env.store.IsWeekLocked(context.Background(), "emp-alice", generic.NewTimePoint(2026, 3, 15))
	require.NoError(t, err)
	assert.False(t, locked)
}

// =============================================================================
// LEAVE
// =============================================================================

func TestCallOut_CascadesAndNotifies(t *testing.T) {
	env := newTestEnv(t)

	// WHEN: Alice calls out sick today
	rec := env.do(t, http.MethodPost, "/api/employees/emp-alice/callouts", map[string]any{
		"date": "2026-03-11", "type": "sick", "reason": "flu",
	}, as("emp-alice"))

	// THEN: She is removed from both of today's jobs
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[CallOutDTO](t, rec)
	assert.Equal(t, "approved", result.Window.Status)
	assert.True(t, result.Window.AutoRemoved)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.AffectedJobs, 2)

	assert.Equal(t, "job-100", result.AffectedJobs[0].JobID)
	assert.Equal(t, []string{"emp-bob"}, result.AffectedJobs[0].RemainingCrew)
	assert.False(t, result.AffectedJobs[0].NeedsReassignment)

	assert.Equal(t, "job-101", result.AffectedJobs[1].JobID)
	assert.Equal(t, 0, result.AffectedJobs[1].RemainingCrewCount)
	assert.True(t, result.AffectedJobs[1].NeedsReassignment)

	// AND: A manager is told job-101 has no crew
	rec = env.do(t, http.MethodGet, "/api/notifications", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decodeBody[[]NotificationDTO](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, "job_needs_reassignment", notes[0].Kind)
	assert.Equal(t, "job-101", notes[0].JobID)
}

func TestCallOut_WithoutScheduleRemoval(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-alice/callouts", map[string]any{
		"date": "2026-03-11", "type": "personal", "remove_from_schedule": false,
	}, as("emp-alice"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[CallOutDTO](t, rec)
	assert.Empty(t, result.AffectedJobs)
	assert.False(t, result.Window.AutoRemoved)

	job, err := env.store.GetJob(context.Background(), "job-101")
	require.NoError(t, err)
	assert.Equal(t, []generic.EmployeeID{"emp-alice"}, job.Crew)
}

func TestCallOut_Rejections(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-alice/callouts", map[string]any{
		"date": "2026-03-12", "type": "sick",
	}, as("emp-alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "future call-out")

	rec = env.do(t, http.MethodPost, "/api/employees/emp-alice/callouts", map[string]any{
		"date": "2026-03-11", "type": "holiday",
	}, as("emp-alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown type")

	rec = env.do(t, http.MethodPost, "/api/employees/emp-nobody/callouts", map[string]any{
		"date": "2026-03-11", "type": "sick",
	}, asManager("mgr-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown employee")
}

func TestLeaveRequest_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: Bob requests next week's Friday to Sunday off
	rec := env.do(t, http.MethodPost, "/api/employees/emp-bob/leave", map[string]any{
		"start_date": "2026-03-20", "end_date": "2026-03-22", "type": "vacation",
	}, as("emp-bob"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	window := decodeBody[WindowDTO](t, rec)
	assert.Equal(t, "pending", window.Status)

	// THEN: A manager is asked to approve
	notes := decodeBody[[]NotificationDTO](t, env.do(t, http.MethodGet, "/api/notifications", nil, nil))
	require.Len(t, notes, 1)
	assert.Equal(t, "leave_needs_approval", notes[0].Kind)
	assert.Equal(t, window.ID, notes[0].WindowID)

	// WHEN: Bob tries to approve his own request
	rec = env.do(t, http.MethodPost, "/api/leave/"+window.ID+"/approve", nil, as("emp-bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// WHEN: Carol approves as manager
	rec = env.do(t, http.MethodPost, "/api/leave/"+window.ID+"/approve",
		map[string]any{"note": "enjoy"}, asManager("emp-carol"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decodeBody[WindowDTO](t, rec)
	assert.Equal(t, "approved", resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "emp-carol", *resolved.ResolvedBy)

	// THEN: It cannot be resolved again
	rec = env.do(t, http.MethodPost, "/api/leave/"+window.ID+"/deny", nil, asManager("emp-carol"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Bob's schedule is untouched
	job, err := env.store.GetJob(context.Background(), "job-102")
	require.NoError(t, err)
	assert.Contains(t, job.Crew, generic.EmployeeID("emp-bob"))

	windows := decodeBody[[]WindowDTO](t, env.do(t, http.MethodGet, "/api/employees/emp-bob/leave", nil, as("emp-bob")))
	assert.Len(t, windows, 1)
}

func TestLeaveRequest_EndBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-bob/leave", map[string]any{
		"start_date": "2026-03-22", "end_date": "2026-03-20", "type": "vacation",
	}, as("emp-bob"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	windows, err := env.store.ListWindows(context.Background(), "emp-bob")
	require.NoError(t, err)
	assert.Empty(t, windows)
}

// =============================================================================
// MATERIALS
// =============================================================================

func TestReconcile_GatesJobCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// WHEN: Only the breakers are reported
	rec := env.do(t, http.MethodPost, "/api/jobs/job-100/reconcile", map[string]any{
		"materials": []map[string]any{{"material_id": "breaker-20a"}},
	}, as("emp-bob"))

	// THEN: The wire is missing and nothing is recorded
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	ds, err := env.store.Dispositions(ctx, "job-100")
	require.NoError(t, err)
	assert.Empty(t, ds)

	wire := map[string]any{
		"material_id":          "wire-12awg",
		"used_qty":             5,
		"leftover_qty":         3,
		"leftover_destination": "van",
	}
	body := map[string]any{"materials": []map[string]any{{"material_id": "breaker-20a"}, wire}}

	// WHEN: Leftover wire goes to a van but no van is known
	rec = env.do(t, http.MethodPost, "/api/jobs/job-100/reconcile", body, as("emp-bob"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// WHEN: The session has a van selected
	rec = env.do(t, http.MethodPost, "/api/jobs/job-100/reconcile", body,
		map[string]string{HeaderEmployeeID: "emp-bob", HeaderVanID: "van-1"})

	// THEN: Both dispositions are recorded and the job completes
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[ReconcileDTO](t, rec)
	assert.True(t, result.CompletionEligible)
	assert.Equal(t, "complete", result.JobStatus)
	require.Len(t, result.Dispositions, 2)

	materials := decodeBody[JobMaterialsDTO](t, env.do(t, http.MethodGet, "/api/jobs/job-100/materials", nil, nil))
	assert.Len(t, materials.Allocations, 3)
	require.Len(t, materials.Dispositions, 2)
	for _, d := range materials.Dispositions {
		if d.MaterialID == "wire-12awg" {
			assert.Equal(t, "van-1", d.VanID)
			assert.Equal(t, "8", d.BaseQuantity.String())
		}
	}

	job, err := env.store.GetJob(ctx, "job-100")
	require.NoError(t, err)
	assert.Equal(t, generic.JobComplete, job.Status)
}

func TestReconcile_UnknownJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/jobs/job-999/reconcile", map[string]any{"materials": []any{}}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SESSION AND SCENARIOS
// =============================================================================

func TestSession_RejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/employees/emp-bob/leave", nil,
		map[string]string{HeaderEmployeeID: "emp-bob", HeaderRole: "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "empty-crew"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ok, err := env.store.EmployeeExists(context.Background(), "emp-dana")
	require.NoError(t, err)
	assert.True(t, ok)

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	scenarios := decodeBody[[]ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios", nil, nil))
	assert.Len(t, scenarios, 2)
}
