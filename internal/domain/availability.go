package domain

import (
	"fmt"
	"time"

	apperrors "github.com/stagelink/rentops/pkg/errors"
)

// RequestedItem is one item/quantity pair in an availability query.
type RequestedItem struct {
	ItemID   string  `json:"item_id"`
	Quantity float64 `json:"quantity"`
}

// PeriodQuery asks whether a set of items is available over a date range.
// ExcludeBookingID, when set, removes one booking from consideration; this is
// used when editing an existing booking so it does not conflict with itself.
type PeriodQuery struct {
	CompanyID        string
	StartDate        time.Time
	EndDate          time.Time
	Items            []RequestedItem
	ExcludeBookingID string
}

// BookingConflict describes one active booking competing for an item's
// capacity during the queried period.
type BookingConflict struct {
	BookingID  string        `json:"booking_id"`
	ClientName string        `json:"client_name"`
	EventTitle string        `json:"event_title"`
	StartDate  time.Time     `json:"start_date"`
	EndDate    time.Time     `json:"end_date"`
	Quantity   float64       `json:"quantity"`
	Status     BookingStatus `json:"status"`
}

// ItemAvailability is the per-item verdict of a period availability check.
type ItemAvailability struct {
	ItemID         string            `json:"item_id"`
	Name           string            `json:"name"`
	TotalCapacity  float64           `json:"total_capacity"`
	Requested      float64           `json:"requested"`
	BookedInPeriod float64           `json:"booked_in_period"`
	Available      float64           `json:"available"`
	Satisfiable    bool              `json:"satisfiable"`
	Conflicts      []BookingConflict `json:"conflicts,omitempty"`
}

// PeriodResult is the full result of a period availability check.
type PeriodResult struct {
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	Satisfiable bool               `json:"satisfiable"`
	Items       []ItemAvailability `json:"items"`
}

// CapacityError is returned when a reservation cannot be satisfied. It carries
// the full availability breakdown so callers can show the user which bookings
// are in the way.
type CapacityError struct {
	Result *PeriodResult
}

func (e *CapacityError) Error() string {
	var short []string
	for _, item := range e.Result.Items {
		if !item.Satisfiable {
			short = append(short, fmt.Sprintf("%s (requested %g, available %g)", item.Name, item.Requested, item.Available))
		}
	}
	if len(short) == 0 {
		return "insufficient capacity for requested period"
	}
	msg := "insufficient capacity: " + short[0]
	for _, s := range short[1:] {
		msg += "; " + s
	}
	return msg
}

// Unwrap lets errors.Is match the insufficient-capacity sentinel.
func (e *CapacityError) Unwrap() error {
	return apperrors.ErrInsufficientCapacity
}
