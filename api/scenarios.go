/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Populates the store with a small field crew, vans, jobs and material
	allocations so every workflow can be exercised by hand. Dates are laid
	out relative to today so call-outs and leave requests line up.

AVAILABLE SCENARIOS:
	field-day:   Three technicians, two vans, jobs today and tomorrow,
	             allocations that need reconciling
	empty-crew:  One single-person job today, for the reassignment path

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "field-day"}

NOTE:
	Loading is additive and idempotent per ID: records are upserted, nothing
	is cleared.

SEE ALSO:
  - handlers.go: other handlers
  - cmd/server/main.go: -seed flag
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/materials"
	"github.com/warp/field-ops/timecard"
)

// Seeder writes the records owned by the job, employee and inventory
// collaborators.
type Seeder interface {
	SaveEmployee(ctx context.Context, id generic.EmployeeID, name string) error
	SaveVan(ctx context.Context, id generic.VanID, name string) error
	SaveJob(ctx context.Context, job generic.Job) error
	SaveAllocation(ctx context.Context, a materials.Allocation) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const DefaultScenario = "field-day"

var scenarios = []ScenarioDTO{
	{
		ID:          "field-day",
		Name:        "Field Day",
		Description: "Three technicians, two vans, jobs today and tomorrow with materials to reconcile",
	},
	{
		ID:          "empty-crew",
		Name:        "Empty Crew",
		Description: "A one-person job today; calling that technician out leaves it unstaffed",
	},
}

// ListScenarios returns all available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario by ID.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, "Invalid request body", err)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// LoadScenarioByID runs the named loader.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var err error
	switch id {
	case "field-day":
		err = h.loadFieldDay(ctx)
	case "empty-crew":
		err = h.loadEmptyCrew(ctx)
	default:
		return generic.NotFound("scenario", id)
	}
	if err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.Log.WithField("scenario", id).Info("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFieldDay(ctx context.Context) error {
	today := generic.DayOf(h.Now())

	employees := map[generic.EmployeeID]string{
		"emp-alice": "Alice Moreno",
		"emp-bob":   "Bob Okafor",
		"emp-carol": "Carol Jensen",
	}
	for id, name := range employees {
		if err := h.Seeder.SaveEmployee(ctx, id, name); err != nil {
			return err
		}
	}
	for id, name := range map[generic.VanID]string{"van-1": "Van 1 (Transit)", "van-2": "Van 2 (Sprinter)"} {
		if err := h.Seeder.SaveVan(ctx, id, name); err != nil {
			return err
		}
	}

	jobs := []generic.Job{
		{
			ID:            "job-100",
			Name:          "Panel upgrade - 14 Elm St",
			Status:        generic.JobScheduled,
			ScheduledDate: today,
			ScheduledTime: "08:00",
			Crew:          []generic.EmployeeID{"emp-alice", "emp-bob"},
		},
		{
			ID:            "job-101",
			Name:          "Service call - 3 Harbor Rd",
			Status:        generic.JobScheduled,
			ScheduledDate: today,
			ScheduledTime: "13:30",
			Crew:          []generic.EmployeeID{"emp-alice"},
		},
		{
			ID:            "job-102",
			Name:          "EV charger install - 88 Birch Ave",
			Status:        generic.JobScheduled,
			ScheduledDate: today.AddDays(1),
			ScheduledTime: "09:00",
			Crew:          []generic.EmployeeID{"emp-bob", "emp-carol"},
		},
	}
	for _, job := range jobs {
		if err := h.Seeder.SaveJob(ctx, job); err != nil {
			return err
		}
	}

	allocations := []materials.Allocation{
		{JobID: "job-100", MaterialID: "wire-12awg", Description: "12 AWG copper wire", Unit: "ft",
			QuantityNeeded: decimal.NewFromInt(10), QuantityAllocated: decimal.NewFromInt(8)},
		{JobID: "job-100", MaterialID: "breaker-20a", Description: "20A breaker", Unit: "ea",
			QuantityNeeded: decimal.NewFromInt(4), QuantityAllocated: decimal.NewFromInt(4)},
		{JobID: "job-100", MaterialID: "conduit-half", Description: "1/2in EMT conduit", Unit: "ft",
			QuantityNeeded: decimal.Zero, QuantityAllocated: decimal.Zero},
		{JobID: "job-102", MaterialID: "ev-charger", Description: "Level 2 charger", Unit: "ea",
			QuantityNeeded: decimal.NewFromInt(1), QuantityAllocated: decimal.Zero},
	}
	for _, a := range allocations {
		if err := h.Seeder.SaveAllocation(ctx, a); err != nil {
			return err
		}
	}

	// A started timecard for today. Reloading after a submit leaves it as is.
	if _, err := h.Ledger.Upsert(ctx, "emp-alice", today, timecard.ForJob("job-100"),
		decimal.NewFromInt(4), "rough-in"); err != nil && !errors.Is(err, generic.ErrWeekLocked) {
		return err
	}
	if _, err := h.Ledger.Upsert(ctx, "emp-alice", today, timecard.NonJob(timecard.CategoryShop),
		decimal.RequireFromString("1.5"), "loading van"); err != nil && !errors.Is(err, generic.ErrWeekLocked) {
		return err
	}
	return nil
}

func (h *Handler) loadEmptyCrew(ctx context.Context) error {
	today := generic.DayOf(h.Now())

	if err := h.Seeder.SaveEmployee(ctx, "emp-dana", "Dana Whitfield"); err != nil {
		return err
	}
	return h.Seeder.SaveJob(ctx, generic.Job{
		ID:            "job-200",
		Name:          "Generator inspection - County Library",
		Status:        generic.JobScheduled,
		ScheduledDate: today,
		ScheduledTime: "10:00",
		Crew:          []generic.EmployeeID{"emp-dana"},
	})
}
