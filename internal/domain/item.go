package domain

import (
	"math"
	"time"
)

// UnitType describes how an item's quantity is measured.
type UnitType string

const (
	// UnitContinuous items are measured in fractional units (meters of
	// fabric, cable runs).
	UnitContinuous UnitType = "continuous"
	// UnitDiscrete items are counted in whole units (panels, tables).
	UnitDiscrete UnitType = "discrete"
)

// Item is a rentable inventory item owned by a company. OccupiedCapacity is a
// denormalized counter maintained by the occupancy service; it reflects the
// total quantity held by bookings in an active status, regardless of dates.
type Item struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	Name             string    `json:"name"`
	Code             string    `json:"code"`
	UnitType         UnitType  `json:"unit_type"`
	TotalCapacity    float64   `json:"total_capacity"`
	OccupiedCapacity float64   `json:"occupied_capacity"`
	UnitPrice        float64   `json:"unit_price"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available returns the currently free capacity, never negative.
func (i *Item) Available() float64 {
	avail := i.TotalCapacity - i.OccupiedCapacity
	if avail < 0 {
		return 0
	}
	return avail
}

// Utilization returns occupied capacity as a fraction of total, in [0, 1].
// An item with zero total capacity reports zero utilization.
func (i *Item) Utilization() float64 {
	if i.TotalCapacity <= 0 {
		return 0
	}
	u := i.OccupiedCapacity / i.TotalCapacity
	if u > 1 {
		return 1
	}
	return u
}

// NormalizeQuantity canonicalizes a requested quantity for the given unit
// type. Discrete quantities are truncated toward zero; continuous quantities
// pass through unchanged. Callers apply this at the input boundary so the
// engine only ever sees canonical values.
func NormalizeQuantity(unitType UnitType, quantity float64) float64 {
	if unitType == UnitDiscrete {
		return math.Trunc(quantity)
	}
	return quantity
}

// ItemStatus is a dashboard snapshot of a single item's occupancy.
type ItemStatus struct {
	ItemID           string   `json:"item_id"`
	Name             string   `json:"name"`
	Code             string   `json:"code"`
	UnitType         UnitType `json:"unit_type"`
	TotalCapacity    float64  `json:"total_capacity"`
	OccupiedCapacity float64  `json:"occupied_capacity"`
	Available        float64  `json:"available"`
	Utilization      float64  `json:"utilization"`
}
