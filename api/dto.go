/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Time entries:  UpsertEntryRequest, EntryDTO, WeekSummaryDTO
  Week lock:     SubmitWeekRequest, SubmitResultDTO
  Leave:         CallOutRequest, LeaveRequest, ResolveRequest, WindowDTO, CallOutDTO
  Materials:     ReconcileRequest, ReconcileDTO, JobMaterialsDTO
  Outbox:        NotificationDTO

VALIDATION:
  Shape checks live in `validate` struct tags (go-playground/validator).
  Business rules stay in the workflow packages.

DATES:
  All calendar dates are "YYYY-MM-DD" strings. Quantities and hours are
  decimals and accept either JSON numbers or strings.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/leave"
	"github.com/warp/field-ops/materials"
	"github.com/warp/field-ops/notify"
	"github.com/warp/field-ops/timecard"
)

// =============================================================================
// TIME ENTRIES
// =============================================================================

// UpsertEntryRequest creates or updates one time entry.
type UpsertEntryRequest struct {
	Date     string           `json:"date" validate:"required,datetime=2006-01-02"`
	JobID    string           `json:"job_id,omitempty"`
	Category string           `json:"category,omitempty"`
	Hours    *decimal.Decimal `json:"hours" validate:"required"`
	Notes    string           `json:"notes,omitempty" validate:"max=2000"`
}

type EntryDTO struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employee_id"`
	Date       string          `json:"date"`
	JobID      string          `json:"job_id,omitempty"`
	Category   string          `json:"category"`
	Hours      decimal.Decimal `json:"hours"`
	Notes      string          `json:"notes,omitempty"`
	Locked     bool            `json:"locked"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type DayTotalDTO struct {
	Date  string          `json:"date"`
	Hours decimal.Decimal `json:"hours"`
}

type WeekSummaryDTO struct {
	EmployeeID string                     `json:"employee_id"`
	WeekStart  string                     `json:"week_start"`
	WeekEnding string                     `json:"week_ending"`
	Locked     bool                       `json:"locked"`
	Entries    []EntryDTO                 `json:"entries"`
	Days       []DayTotalDTO              `json:"days"`
	Jobs       map[string]decimal.Decimal `json:"jobs"`
	Categories map[string]decimal.Decimal `json:"categories"`
	Total      decimal.Decimal            `json:"total"`
	Regular    decimal.Decimal            `json:"regular"`
	Overtime   decimal.Decimal            `json:"overtime"`
}

// =============================================================================
// WEEK LOCK
// =============================================================================

// SubmitWeekRequest carries entries still pending on the client.
type SubmitWeekRequest struct {
	Entries []UpsertEntryRequest `json:"entries" validate:"dive"`
}

type SubmitResultDTO struct {
	EmployeeID string          `json:"employee_id"`
	WeekEnding string          `json:"week_ending"`
	Saved      []string        `json:"saved"`
	Omitted    int             `json:"omitted"`
	Summary    *WeekSummaryDTO `json:"summary,omitempty"`
}

// FlushFailureDTO is one pending entry that blocked a submit.
type FlushFailureDTO struct {
	Date   string `json:"date"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// =============================================================================
// LEAVE
// =============================================================================

type CallOutRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Type   string `json:"type" validate:"required,oneof=sick vacation personal other"`
	Reason string `json:"reason,omitempty" validate:"max=500"`

	// RemoveFromSchedule defaults to true when omitted.
	RemoveFromSchedule *bool `json:"remove_from_schedule,omitempty"`
}

type LeaveRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Type      string `json:"type" validate:"required,oneof=sick vacation personal other"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
}

type ResolveRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

type WindowDTO struct {
	ID          string     `json:"id"`
	EmployeeID  string     `json:"employee_id"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Type        string     `json:"type"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	AutoRemoved bool       `json:"auto_removed"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedBy  *string    `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolveNote string     `json:"resolve_note,omitempty"`
}

type AffectedJobDTO struct {
	JobID              string   `json:"job_id"`
	Name               string   `json:"name"`
	ScheduledDate      string   `json:"scheduled_date"`
	ScheduledTime      string   `json:"scheduled_time,omitempty"`
	RemainingCrew      []string `json:"remaining_crew"`
	RemainingCrewCount int      `json:"remaining_crew_count"`
	NeedsReassignment  bool     `json:"needs_reassignment"`
}

// CallOutDTO reports the recorded window, the affected jobs, and any crew
// updates that failed (warnings, not errors).
type CallOutDTO struct {
	Window       WindowDTO        `json:"window"`
	AffectedJobs []AffectedJobDTO `json:"affected_jobs"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// =============================================================================
// MATERIALS
// =============================================================================

type ReconcileItemRequest struct {
	MaterialID          string           `json:"material_id" validate:"required"`
	UsedQty             *decimal.Decimal `json:"used_qty,omitempty"`
	LeftoverQty         *decimal.Decimal `json:"leftover_qty,omitempty"`
	LeftoverDestination string           `json:"leftover_destination,omitempty" validate:"omitempty,oneof=none van warehouse"`
	VanID               string           `json:"van_id,omitempty"`
	Notes               string           `json:"notes,omitempty" validate:"max=500"`
}

type ReconcileRequest struct {
	Materials []ReconcileItemRequest `json:"materials" validate:"dive"`
}

type AllocationDTO struct {
	MaterialID          string          `json:"material_id"`
	Description         string          `json:"description,omitempty"`
	Unit                string          `json:"unit,omitempty"`
	QuantityNeeded      decimal.Decimal `json:"quantity_needed"`
	QuantityAllocated   decimal.Decimal `json:"quantity_allocated"`
	RequiresDisposition bool            `json:"requires_disposition"`
}

type DispositionDTO struct {
	ID                  string          `json:"id,omitempty"`
	MaterialID          string          `json:"material_id"`
	BaseQuantity        decimal.Decimal `json:"base_quantity"`
	UsedQty             decimal.Decimal `json:"used_qty"`
	LeftoverQty         decimal.Decimal `json:"leftover_qty"`
	LeftoverDestination string          `json:"leftover_destination"`
	VanID               string          `json:"van_id,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	RecordedBy          string          `json:"recorded_by,omitempty"`
	RecordedAt          time.Time       `json:"recorded_at"`
}

type ReconcileDTO struct {
	JobID              string           `json:"job_id"`
	Dispositions       []DispositionDTO `json:"dispositions"`
	CompletionEligible bool             `json:"completion_eligible"`
	JobStatus          string           `json:"job_status"`
}

type JobMaterialsDTO struct {
	JobID        string           `json:"job_id"`
	Allocations  []AllocationDTO  `json:"allocations"`
	Dispositions []DispositionDTO `json:"dispositions"`
}

// =============================================================================
// OUTBOX, SCENARIOS, ERRORS
// =============================================================================

type NotificationDTO struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	EmployeeID string    `json:"employee_id,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	WindowID   string    `json:"window_id,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Details  string            `json:"details,omitempty"`
	Problems []string          `json:"problems,omitempty"`
	Failures []FlushFailureDTO `json:"failures,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEntryDTO(e timecard.Entry) EntryDTO {
	return EntryDTO{
		ID:         string(e.ID),
		EmployeeID: string(e.EmployeeID),
		Date:       e.Date.String(),
		JobID:      string(e.Target.JobID),
		Category:   string(e.Target.Category),
		Hours:      e.Hours,
		Notes:      e.Notes,
		Locked:     e.Locked,
		UpdatedAt:  e.UpdatedAt,
	}
}

func toWeekSummaryDTO(s *timecard.WeekSummary) *WeekSummaryDTO {
	if s == nil {
		return nil
	}
	dto := &WeekSummaryDTO{
		EmployeeID: string(s.EmployeeID),
		WeekStart:  s.WeekStart.String(),
		WeekEnding: s.WeekEnding.String(),
		Locked:     s.Locked,
		Entries:    make([]EntryDTO, len(s.Entries)),
		Days:       make([]DayTotalDTO, len(s.Days)),
		Jobs:       make(map[string]decimal.Decimal, len(s.Jobs)),
		Categories: make(map[string]decimal.Decimal, len(s.Categories)),
		Total:      s.Total,
		Regular:    s.Regular,
		Overtime:   s.Overtime,
	}
	for i, e := range s.Entries {
		dto.Entries[i] = toEntryDTO(e)
	}
	for i, d := range s.Days {
		dto.Days[i] = DayTotalDTO{Date: d.Date.String(), Hours: d.Hours}
	}
	for id, h := range s.Jobs {
		dto.Jobs[string(id)] = h
	}
	for c, h := range s.Categories {
		dto.Categories[string(c)] = h
	}
	return dto
}

func toWindowDTO(w leave.Window) WindowDTO {
	dto := WindowDTO{
		ID:          string(w.ID),
		EmployeeID:  string(w.EmployeeID),
		StartDate:   w.Start.String(),
		EndDate:     w.End.String(),
		Type:        string(w.Type),
		Reason:      w.Reason,
		Status:      string(w.Status),
		AutoRemoved: w.AutoRemoved,
		CreatedAt:   w.CreatedAt,
		ResolvedAt:  w.ResolvedAt,
		ResolveNote: w.ResolveNote,
	}
	if w.ResolvedBy != nil {
		by := string(*w.ResolvedBy)
		dto.ResolvedBy = &by
	}
	return dto
}

func toAffectedJobDTO(a leave.AffectedJob) AffectedJobDTO {
	crew := make([]string, len(a.RemainingCrew))
	for i, c := range a.RemainingCrew {
		crew[i] = string(c)
	}
	return AffectedJobDTO{
		JobID:              string(a.JobID),
		Name:               a.Name,
		ScheduledDate:      a.ScheduledDate.String(),
		ScheduledTime:      a.ScheduledTime,
		RemainingCrew:      crew,
		RemainingCrewCount: a.RemainingCrewCount,
		NeedsReassignment:  a.NeedsReassignment,
	}
}

func toAllocationDTO(a materials.Allocation) AllocationDTO {
	return AllocationDTO{
		MaterialID:          string(a.MaterialID),
		Description:         a.Description,
		Unit:                a.Unit,
		QuantityNeeded:      a.QuantityNeeded,
		QuantityAllocated:   a.QuantityAllocated,
		RequiresDisposition: a.Qualifies(),
	}
}

func toDispositionDTOs(ds []materials.Disposition) []DispositionDTO {
	dtos := make([]DispositionDTO, len(ds))
	for i, d := range ds {
		dtos[i] = DispositionDTO{
			ID:                  string(d.ID),
			MaterialID:          string(d.MaterialID),
			BaseQuantity:        d.BaseQuantity,
			UsedQty:             d.QuantityUsed,
			LeftoverQty:         d.QuantityLeftover,
			LeftoverDestination: string(d.Destination),
			VanID:               string(d.VanID),
			Notes:               d.Notes,
			RecordedBy:          string(d.RecordedBy),
			RecordedAt:          d.RecordedAt,
		}
	}
	return dtos
}

func toNotificationDTO(r notify.Record) NotificationDTO {
	return NotificationDTO{
		ID:         r.ID,
		Kind:       string(r.Kind),
		EmployeeID: string(r.EmployeeID),
		JobID:      string(r.JobID),
		WindowID:   string(r.WindowID),
		Message:    r.Message,
		CreatedAt:  r.CreatedAt,
	}
}

func (r ReconcileItemRequest) toItem() materials.Item {
	return materials.Item{
		MaterialID:  generic.MaterialID(r.MaterialID),
		Used:        r.UsedQty,
		Leftover:    r.LeftoverQty,
		Destination: materials.Destination(r.LeftoverDestination),
		VanID:       generic.VanID(r.VanID),
		Notes:       r.Notes,
	}
}
