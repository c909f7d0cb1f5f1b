/*
engine.go - Material disposition engine

PURPOSE:
  Before a job can be completed, every qualifying material allocation
  (needed quantity > 0) must be accounted for: how much was used, how much
  is left over, and where the leftover went.

RULES (per item, all checked before anything is written):
  1. used + leftover == base quantity
     (base = allocated if allocated > 0, else needed)
  2. leftover > 0  => destination is van or warehouse;
     destination van => a van is resolvable (item van, else session van)
  3. leftover == 0 => destination is none

ALL-OR-NOTHING:
  Any violation on any item aborts the whole call. Problems from every item
  are returned together (errors.Join) so the caller can fix them in one pass.
  On success the dispositions are recorded in a single store transaction and
  only then is completion eligibility signalled. The status transition itself
  belongs to the job-lifecycle collaborator.

DEFAULT FILL:
  A supplied item may omit quantities: omitting both means fully used,
  omitting one means the complement of the base quantity. A qualifying
  material with no item at all is never filled in; it is reported as missing.
*/
package materials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
)

// =============================================================================
// STORE - Inventory/material collaborator
// =============================================================================

type Store interface {
	// Allocations returns every material allocation of the job.
	Allocations(ctx context.Context, jobID generic.JobID) ([]Allocation, error)

	// RecordDispositions replaces the job's dispositions with ds in one
	// transaction. Either all are written or none are.
	RecordDispositions(ctx context.Context, jobID generic.JobID, ds []Disposition) error

	Dispositions(ctx context.Context, jobID generic.JobID) ([]Disposition, error)
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store     Store
	Jobs      generic.JobStore
	Directory generic.Directory // optional, resolves vans
	Log       *logrus.Entry
	Now       func() time.Time
}

func NewEngine(store Store, jobs generic.JobStore) *Engine {
	return &Engine{
		Store: store,
		Jobs:  jobs,
		Log:   logrus.NewEntry(logrus.StandardLogger()),
		Now:   time.Now,
	}
}

// Reconcile validates and records one disposition per qualifying allocation.
func (e *Engine) Reconcile(ctx context.Context, req ReconcileRequest) (*Result, error) {
	if req.JobID == "" {
		return nil, generic.Invalid("job_id", "required")
	}
	job, err := e.Jobs.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status == generic.JobComplete || job.Status == generic.JobCancelled {
		return nil, generic.Invalid("job_id", "job %s is already %s", job.ID, job.Status)
	}

	allocations, err := e.Store.Allocations(ctx, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}

	log := e.Log.WithField("job_id", req.JobID)

	items, err := indexItems(req.Items, allocations)
	if err != nil {
		return nil, err
	}

	var qualifying []Allocation
	for _, a := range allocations {
		if a.Qualifies() {
			qualifying = append(qualifying, a)
		} else if _, ok := items[a.MaterialID]; ok {
			log.WithField("material_id", a.MaterialID).Debug("ignoring disposition for non-qualifying allocation")
		}
	}

	if len(qualifying) == 0 {
		log.Info("no qualifying materials, job eligible for completion")
		return &Result{JobID: req.JobID, CompletionEligible: true}, nil
	}

	var (
		errs         []error
		incomplete   = &generic.IncompleteDispositionError{JobID: req.JobID}
		dispositions = make([]Disposition, 0, len(qualifying))
		now          = e.Now().UTC()
	)
	for _, a := range qualifying {
		item, ok := items[a.MaterialID]
		if !ok {
			incomplete.Missing = append(incomplete.Missing, a.MaterialID)
			continue
		}
		d, balanced, itemErrs := e.resolve(ctx, a, item, req.Actor)
		if !balanced {
			incomplete.Unbalanced = append(incomplete.Unbalanced, a.MaterialID)
		}
		if len(itemErrs) > 0 || !balanced {
			errs = append(errs, itemErrs...)
			continue
		}
		d.RecordedBy = req.Actor.EmployeeID
		d.RecordedAt = now
		dispositions = append(dispositions, d)
	}

	if len(incomplete.Missing) > 0 || len(incomplete.Unbalanced) > 0 {
		errs = append([]error{incomplete}, errs...)
	}
	if len(errs) > 0 {
		log.WithFields(logrus.Fields{
			"missing":    len(incomplete.Missing),
			"unbalanced": len(incomplete.Unbalanced),
			"problems":   len(errs),
		}).Warn("reconcile rejected")
		return nil, errors.Join(errs...)
	}

	if err := e.Store.RecordDispositions(ctx, req.JobID, dispositions); err != nil {
		return nil, fmt.Errorf("failed to record dispositions: %w", err)
	}

	log.WithField("dispositions", len(dispositions)).Info("materials reconciled, job eligible for completion")
	return &Result{JobID: req.JobID, Dispositions: dispositions, CompletionEligible: true}, nil
}

// Dispositions returns what was recorded for the job.
func (e *Engine) Dispositions(ctx context.Context, jobID generic.JobID) ([]Disposition, error) {
	return e.Store.Dispositions(ctx, jobID)
}

// Allocations returns the job's allocations.
func (e *Engine) Allocations(ctx context.Context, jobID generic.JobID) ([]Allocation, error) {
	if _, err := e.Jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return e.Store.Allocations(ctx, jobID)
}

func indexItems(items []Item, allocations []Allocation) (map[generic.MaterialID]Item, error) {
	known := make(map[generic.MaterialID]bool, len(allocations))
	for _, a := range allocations {
		known[a.MaterialID] = true
	}

	index := make(map[generic.MaterialID]Item, len(items))
	for _, item := range items {
		if item.MaterialID == "" {
			return nil, generic.Invalid("material_id", "required")
		}
		if !known[item.MaterialID] {
			return nil, generic.NotFound("material", item.MaterialID)
		}
		if _, dup := index[item.MaterialID]; dup {
			return nil, generic.Invalid("material_id", "material %s listed more than once", item.MaterialID)
		}
		index[item.MaterialID] = item
	}
	return index, nil
}

// resolve applies default fill and the three rules to one item. balanced is
// false when used + leftover does not match the base quantity.
func (e *Engine) resolve(ctx context.Context, a Allocation, item Item, actor generic.Actor) (Disposition, bool, []error) {
	var scaleErrs []error
	for name, q := range map[string]*decimal.Decimal{"used_qty": item.Used, "leftover_qty": item.Leftover} {
		if q == nil {
			continue
		}
		if err := generic.CheckScale(fmt.Sprintf("materials[%s].%s", a.MaterialID, name), *q); err != nil {
			scaleErrs = append(scaleErrs, err)
		}
	}
	if len(scaleErrs) > 0 {
		return Disposition{}, true, scaleErrs
	}

	base := a.BaseQuantity()
	used, leftover := fill(base, item.Used, item.Leftover)

	d := Disposition{
		JobID:            a.JobID,
		MaterialID:       a.MaterialID,
		BaseQuantity:     base,
		QuantityUsed:     used,
		QuantityLeftover: leftover,
		Destination:      item.Destination,
		Notes:            item.Notes,
	}

	var errs []error
	field := func(name string) string { return fmt.Sprintf("materials[%s].%s", a.MaterialID, name) }

	if used.IsNegative() {
		errs = append(errs, generic.Invalid(field("used_qty"), "must not be negative, got %s", used))
	}
	if leftover.IsNegative() {
		errs = append(errs, generic.Invalid(field("leftover_qty"), "must not be negative, got %s", leftover))
	}
	balanced := used.Add(leftover).Equal(base)

	if d.Destination == "" && leftover.IsZero() {
		d.Destination = DestinationNone
	}

	switch {
	case !d.Destination.IsValid():
		errs = append(errs, generic.Invalid(field("leftover_destination"), "unknown destination %q", item.Destination))
	case leftover.IsPositive() && d.Destination == DestinationNone:
		errs = append(errs, generic.Invalid(field("leftover_destination"), "leftover of %s needs a van or warehouse destination", leftover))
	case leftover.IsZero() && d.Destination != DestinationNone:
		errs = append(errs, generic.Invalid(field("leftover_destination"), "must be none when nothing is left over"))
	}

	if d.Destination == DestinationVan {
		van, err := e.resolveVan(ctx, item.VanID, actor.VanID)
		if err != nil {
			errs = append(errs, err)
		}
		d.VanID = van
	} else if item.VanID != "" {
		errs = append(errs, generic.Invalid(field("van_id"), "only allowed when the destination is van"))
	}

	return d, balanced, errs
}

func fill(base decimal.Decimal, used, leftover *decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	switch {
	case used == nil && leftover == nil:
		return base, decimal.Zero
	case used == nil:
		return base.Sub(*leftover), *leftover
	case leftover == nil:
		return *used, base.Sub(*used)
	default:
		return *used, *leftover
	}
}

func (e *Engine) resolveVan(ctx context.Context, explicit, session generic.VanID) (generic.VanID, error) {
	van := explicit
	if van == "" {
		van = session
	}
	if van == "" {
		return "", generic.Invalid("van_id", "leftover sent to a van needs a van, none given and none selected")
	}
	if e.Directory == nil {
		return van, nil
	}
	ok, err := e.Directory.VanExists(ctx, van)
	if err != nil {
		return "", fmt.Errorf("failed to resolve van: %w", err)
	}
	if !ok {
		return "", generic.NotFound("van", van)
	}
	return van, nil
}
