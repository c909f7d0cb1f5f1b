// Package materials reconciles the materials allocated to a job against what
// was used and where the leftovers went, gating the job's completion.
package materials

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/field-ops/generic"
)

// =============================================================================
// DESTINATION - Where leftover stock goes
// =============================================================================

type Destination string

const (
	DestinationNone      Destination = "none"
	DestinationVan       Destination = "van"
	DestinationWarehouse Destination = "warehouse"
)

func (d Destination) IsValid() bool {
	switch d {
	case DestinationNone, DestinationVan, DestinationWarehouse:
		return true
	}
	return false
}

// =============================================================================
// ALLOCATION - Owned by the job-planning/inventory collaborator
// =============================================================================

type Allocation struct {
	JobID             generic.JobID
	MaterialID        generic.MaterialID
	Description       string
	Unit              string
	QuantityNeeded    decimal.Decimal
	QuantityAllocated decimal.Decimal
}

// Qualifies reports whether the allocation must be dispositioned.
func (a Allocation) Qualifies() bool {
	return a.QuantityNeeded.IsPositive()
}

// BaseQuantity is the allocated quantity if any stock was pulled, otherwise
// the needed quantity.
func (a Allocation) BaseQuantity() decimal.Decimal {
	if a.QuantityAllocated.IsPositive() {
		return a.QuantityAllocated
	}
	return a.QuantityNeeded
}

// =============================================================================
// DISPOSITION
// =============================================================================

// Disposition is the recorded outcome of one allocation at job completion.
type Disposition struct {
	ID               generic.DispositionID
	JobID            generic.JobID
	MaterialID       generic.MaterialID
	BaseQuantity     decimal.Decimal
	QuantityUsed     decimal.Decimal
	QuantityLeftover decimal.Decimal
	Destination      Destination
	// VanID is set iff Destination is DestinationVan.
	VanID      generic.VanID
	Notes      string
	RecordedBy generic.EmployeeID
	RecordedAt time.Time
}

// Item is one caller-supplied disposition. Nil quantities are default-filled
// from the allocation's base quantity.
type Item struct {
	MaterialID  generic.MaterialID
	Used        *decimal.Decimal
	Leftover    *decimal.Decimal
	Destination Destination
	VanID       generic.VanID
	Notes       string
}

// ReconcileRequest carries the explicit session context reconcile needs.
type ReconcileRequest struct {
	JobID generic.JobID
	Items []Item
	// Actor supplies the recorder and, when an item names no van, the van
	// selected in the actor's session.
	Actor generic.Actor
}

// Result is the outcome of a successful reconcile.
type Result struct {
	JobID        generic.JobID
	Dispositions []Disposition
	// CompletionEligible signals the job-lifecycle collaborator that the job
	// may transition to complete.
	CompletionEligible bool
}
