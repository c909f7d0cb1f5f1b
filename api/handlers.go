/*
handlers.go - HTTP API handlers for the field-service workflow core

PURPOSE:
  Exposes the time entry ledger, week lock, leave processor and material
  disposition engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the workflow packages.

ENDPOINTS:
  Time entries:
    GET    /api/employees/{id}/entries?from=&to=        List entries (default: current week)
    PUT    /api/employees/{id}/entries                  Upsert one entry
    GET    /api/employees/{id}/weeks/{date}             Week summary containing date
    POST   /api/employees/{id}/weeks/{weekEnding}/submit Flush pending entries, lock week

  Leave:
    POST   /api/employees/{id}/callouts                 Same-day call-out
    GET    /api/employees/{id}/leave                    List windows
    POST   /api/employees/{id}/leave                    Request future leave
    POST   /api/leave/{id}/approve                      Manager approves
    POST   /api/leave/{id}/deny                         Manager denies

  Materials:
    GET    /api/jobs/{id}/materials                     Allocations and dispositions
    POST   /api/jobs/{id}/reconcile                     Reconcile, then complete the job

  Outbox:
    GET    /api/notifications                           Manager notifications

REQUEST FLOW:
  1. Resolve the session actor (session.go)
  2. Decode and validate the body (validator tags in dto.go)
  3. Call the workflow package
  4. Serialize response or map the error kind to a status

ERROR HANDLING:
  Errors are returned as JSON with a status derived from the error kind:
  - 400: Validation
  - 401: No session on an employee route
  - 403: Actor not allowed
  - 404: NotFound
  - 409: WeekLocked, already resolved
  - 422: IncompleteDisposition, failed submit flush
  - 500: Internal errors
  A partial call-out cascade is a success with warnings.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/leave"
	"github.com/warp/field-ops/materials"
	"github.com/warp/field-ops/notify"
	"github.com/warp/field-ops/timecard"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Outbox lists persisted manager notifications.
type Outbox interface {
	Notifications(ctx context.Context) ([]notify.Record, error)
}

// Backend is everything a store must implement to serve the API.
type Backend interface {
	timecard.Store
	leave.Store
	leave.Notifier
	materials.Store
	generic.JobStore
	generic.Directory
	Outbox
	Seeder
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *timecard.Ledger
	Leave     *leave.Processor
	Materials *materials.Engine
	Jobs      generic.JobStore
	Outbox    Outbox
	Seeder    Seeder
	Log       *logrus.Entry
	Now       func() time.Time

	validate *validator.Validate
}

// NewHandler wires the workflow services over one backend. Notifications go
// to the backend's outbox and to the log.
func NewHandler(b Backend, logger *logrus.Logger) *Handler {
	log := logrus.NewEntry(logger)

	ledger := timecard.NewLedger(b)
	ledger.Directory = b
	ledger.Jobs = b
	ledger.Log = log.WithField("component", "timecard")

	processor := leave.NewProcessor(b, b, notify.Fanout{b, notify.NewLog(logger)})
	processor.Directory = b
	processor.Log = log.WithField("component", "leave")

	engine := materials.NewEngine(b, b)
	engine.Directory = b
	engine.Log = log.WithField("component", "materials")

	return &Handler{
		Ledger:    ledger,
		Leave:     processor,
		Materials: engine,
		Jobs:      b,
		Outbox:    b,
		Seeder:    b,
		Log:       log.WithField("component", "api"),
		Now:       time.Now,
		validate:  newValidator(),
	}
}

// SetClock points every service at the same clock.
func (h *Handler) SetClock(now func() time.Time) {
	h.Now = now
	h.Ledger.Now = now
	h.Leave.Now = now
	h.Materials.Now = now
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// ListEntries returns entries in [from, to], defaulting to the current week.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	today := generic.DayOf(h.Now())
	from, to := h.Ledger.Week.WeekStarting(today), h.Ledger.Week.WeekEnding(today)
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = generic.ParseDate(s); err != nil {
			writeDomainError(w, "Invalid from date", err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = generic.ParseDate(s); err != nil {
			writeDomainError(w, "Invalid to date", err)
			return
		}
	}

	entries, err := h.Ledger.List(r.Context(), emp, from, to)
	if err != nil {
		writeDomainError(w, "Failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertEntry creates or updates the entry for (employee, date, target).
func (h *Handler) UpsertEntry(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	var req UpsertEntryRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeDomainError(w, "Invalid entry", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Ledger.Upsert(ctx, emp, in.Date, in.Target, in.Hours, in.Notes); err != nil {
		writeDomainError(w, "Failed to save entry", err)
		return
	}

	entry, err := h.Ledger.Store.FindEntry(ctx, emp, in.Date, in.Target)
	if err != nil || entry == nil {
		writeError(w, http.StatusInternalServerError, "Entry saved but could not be read back", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// GetWeek returns the week summary for the week containing {date}.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}
	date, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, "Invalid date", err)
		return
	}

	summary, err := h.Ledger.WeekSummary(r.Context(), emp, date)
	if err != nil {
		writeDomainError(w, "Failed to load week", err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekSummaryDTO(summary))
}

// SubmitWeek flushes the pending entries in the body and locks the week.
func (h *Handler) SubmitWeek(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}
	weekEnding, err := generic.ParseDate(chi.URLParam(r, "weekEnding"))
	if err != nil {
		writeDomainError(w, "Invalid week ending", err)
		return
	}

	var req SubmitWeekRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	pending := make([]timecard.EntryInput, 0, len(req.Entries))
	for _, e := range req.Entries {
		in, err := e.toInput()
		if err != nil {
			writeDomainError(w, "Invalid entry", err)
			return
		}
		pending = append(pending, in)
	}

	result, err := h.Ledger.SubmitWeek(r.Context(), emp, weekEnding, pending)
	if err != nil {
		writeDomainError(w, "Week not submitted", err)
		return
	}

	saved := make([]string, len(result.Saved))
	for i, id := range result.Saved {
		saved[i] = string(id)
	}
	writeJSON(w, http.StatusOK, SubmitResultDTO{
		EmployeeID: string(result.EmployeeID),
		WeekEnding: result.WeekEnding.String(),
		Saved:      saved,
		Omitted:    result.Omitted,
		Summary:    toWeekSummaryDTO(result.Summary),
	})
}

func (req UpsertEntryRequest) toInput() (timecard.EntryInput, error) {
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		return timecard.EntryInput{}, err
	}
	category := timecard.Category(req.Category)
	if req.JobID != "" && category == "" {
		category = timecard.CategoryJob
	}
	target := timecard.Target{JobID: generic.JobID(req.JobID), Category: category}
	if err := target.Validate(); err != nil {
		return timecard.EntryInput{}, err
	}
	return timecard.EntryInput{
		Date:   date,
		Target: target,
		Hours:  *req.Hours,
		Notes:  req.Notes,
	}, nil
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// CallOut records a same-day call-out and cascades it to the schedule.
func (h *Handler) CallOut(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	var req CallOutRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeDomainError(w, "Invalid date", err)
		return
	}
	remove := req.RemoveFromSchedule == nil || *req.RemoveFromSchedule

	result, err := h.Leave.CallOut(r.Context(), emp, date, leave.Type(req.Type), req.Reason, remove)
	if err != nil && !errors.Is(err, generic.ErrPartialCascade) {
		writeDomainError(w, "Failed to record call-out", err)
		return
	}

	dto := CallOutDTO{
		Window:       toWindowDTO(result.Window),
		AffectedJobs: make([]AffectedJobDTO, len(result.AffectedJobs)),
	}
	for i, a := range result.AffectedJobs {
		dto.AffectedJobs[i] = toAffectedJobDTO(a)
	}
	for _, f := range result.Failures {
		if f.JobID != "" {
			dto.Warnings = append(dto.Warnings, fmt.Sprintf("job %s: %s", f.JobID, f.Reason))
		} else {
			dto.Warnings = append(dto.Warnings, f.Reason)
		}
	}
	writeJSON(w, http.StatusCreated, dto)
}

// RequestLeave records a pending leave request for future dates.
func (h *Handler) RequestLeave(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	var req LeaveRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeDomainError(w, "Invalid start date", err)
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		writeDomainError(w, "Invalid end date", err)
		return
	}

	window, err := h.Leave.RequestLeave(r.Context(), emp, start, end, leave.Type(req.Type), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to request leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(*window))
}

// ListLeave returns every window recorded for the employee.
func (h *Handler) ListLeave(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}
	windows, err := h.Leave.Windows(r.Context(), emp)
	if err != nil {
		writeDomainError(w, "Failed to list leave", err)
		return
	}
	dtos := make([]WindowDTO, len(windows))
	for i, win := range windows {
		dtos[i] = toWindowDTO(win)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.resolveLeave(w, r, true)
}

func (h *Handler) DenyLeave(w http.ResponseWriter, r *http.Request) {
	h.resolveLeave(w, r, false)
}

func (h *Handler) resolveLeave(w http.ResponseWriter, r *http.Request, approve bool) {
	actor := ActorFrom(r.Context())
	if actor.Role != generic.RoleManager {
		writeError(w, http.StatusForbidden, "Only managers can resolve leave requests", nil)
		return
	}

	var req ResolveRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}

	id := generic.WindowID(chi.URLParam(r, "id"))
	window, err := h.Leave.Resolve(r.Context(), id, approve, actor, req.Note)
	if err != nil {
		writeDomainError(w, "Failed to resolve leave request", err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(*window))
}

// =============================================================================
// MATERIAL HANDLERS
// =============================================================================

// GetJobMaterials returns the job's allocations and recorded dispositions.
func (h *Handler) GetJobMaterials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := generic.JobID(chi.URLParam(r, "id"))

	allocations, err := h.Materials.Allocations(ctx, jobID)
	if err != nil {
		writeDomainError(w, "Failed to load allocations", err)
		return
	}
	dispositions, err := h.Materials.Dispositions(ctx, jobID)
	if err != nil {
		writeDomainError(w, "Failed to load dispositions", err)
		return
	}

	dto := JobMaterialsDTO{
		JobID:        string(jobID),
		Allocations:  make([]AllocationDTO, len(allocations)),
		Dispositions: toDispositionDTOs(dispositions),
	}
	for i, a := range allocations {
		dto.Allocations[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ReconcileMaterials records the dispositions and, once eligible, completes
// the job.
func (h *Handler) ReconcileMaterials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := generic.JobID(chi.URLParam(r, "id"))

	var req ReconcileRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	items := make([]materials.Item, len(req.Materials))
	for i, m := range req.Materials {
		items[i] = m.toItem()
	}

	result, err := h.Materials.Reconcile(ctx, materials.ReconcileRequest{
		JobID: jobID,
		Items: items,
		Actor: ActorFrom(ctx),
	})
	if err != nil {
		writeDomainError(w, "Materials not reconciled", err)
		return
	}

	status := generic.JobInProgress
	if result.CompletionEligible {
		if err := h.Jobs.CompleteJob(ctx, jobID); err != nil {
			h.Log.WithError(err).WithField("job_id", jobID).Error("dispositions recorded but job not completed")
			writeError(w, http.StatusInternalServerError, "Dispositions recorded but job not completed", err)
			return
		}
		status = generic.JobComplete
	}

	writeJSON(w, http.StatusOK, ReconcileDTO{
		JobID:              string(result.JobID),
		Dispositions:       toDispositionDTOs(result.Dispositions),
		CompletionEligible: result.CompletionEligible,
		JobStatus:          string(status),
	})
}

// =============================================================================
// OUTBOX
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	records, err := h.Outbox.Notifications(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list notifications", err)
		return
	}
	dtos := make([]NotificationDTO, len(records))
	for i, rec := range records {
		dtos[i] = toNotificationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// employee returns the {id} path employee if the session actor may act for them.
// Managers may act for anyone; the system actor for no one.
func (h *Handler) employee(w http.ResponseWriter, r *http.Request) (generic.EmployeeID, bool) {
	emp := generic.EmployeeID(chi.URLParam(r, "id"))
	actor := ActorFrom(r.Context())
	if actor.Role == generic.RoleSystem {
		writeError(w, http.StatusUnauthorized, "Session required", nil)
		return "", false
	}
	if actor.Role == generic.RoleEmployee && actor.EmployeeID != emp {
		writeError(w, http.StatusForbidden, "Employees can only act for themselves", nil)
		return "", false
	}
	return emp, true
}

// decode reads a JSON body into dst and runs its validate tags. An empty body
// decodes as the zero value.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return generic.Invalid("body", "invalid JSON: %v", err)
	}
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make([]error, len(fieldErrs))
	for i, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		if fe.Param() != "" {
			errs[i] = generic.Invalid(field, "failed %s=%s", fe.Tag(), fe.Param())
		} else {
			errs[i] = generic.Invalid(field, "failed %s", fe.Tag())
		}
	}
	return errors.Join(errs...)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var flush *timecard.FlushError
	switch {
	case errors.As(err, &flush), errors.Is(err, generic.ErrIncompleteDisposition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generic.ErrWeekLocked), errors.Is(err, generic.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var flush *timecard.FlushError
	if errors.As(err, &flush) {
		for _, f := range flush.Failures {
			resp.Failures = append(resp.Failures, FlushFailureDTO{
				Date:   f.Input.Date.String(),
				Target: f.Input.Target.String(),
				Error:  f.Err.Error(),
			})
		}
	} else if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			resp.Problems = append(resp.Problems, e.Error())
		}
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
