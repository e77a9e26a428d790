package domain

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusHold       BookingStatus = "HOLD"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusCancelled  BookingStatus = "CANCELLED"
	StatusReturned   BookingStatus = "RETURNED"
)

// ValidStatuses lists every accepted booking status.
var ValidStatuses = []BookingStatus{
	StatusPending, StatusConfirmed, StatusInProgress,
	StatusHold, StatusCompleted, StatusCancelled, StatusReturned,
}

// Occupies reports whether a booking in this status holds inventory capacity.
// Only PENDING, CONFIRMED, and IN_PROGRESS bookings occupy items; terminal and
// suspended statuses release them.
func (s BookingStatus) Occupies() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the billing state of a booking, carried for reporting.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// LineItem reserves a quantity of one inventory item within a booking.
type LineItem struct {
	ID        string  `json:"id"`
	BookingID string  `json:"booking_id"`
	ItemID    string  `json:"item_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Booking is a client reservation of inventory items over a date range.
// StartDate must fall strictly before EndDate; the range reads as the days
// from StartDate up to, but not including, EndDate. Conflict checks are
// stricter than that reading, see Overlaps.
type Booking struct {
	ID            string        `json:"id"`
	CompanyID     string        `json:"company_id"`
	ClientID      string        `json:"client_id"`
	EventTitle    string        `json:"event_title"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	LineItems     []LineItem    `json:"line_items,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Overlaps reports whether the booking's date range intersects [start, end].
// Boundaries are inclusive: a booking ending on the query start date, or
// starting on the query end date, still overlaps. Same-day turnaround
// therefore counts both bookings against capacity.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return !b.StartDate.After(end) && !b.EndDate.Before(start)
}

// QuantityOf returns the reserved quantity of the given item, summed across
// line items in case the same item appears more than once.
func (b *Booking) QuantityOf(itemID string) float64 {
	var total float64
	for _, li := range b.LineItems {
		if li.ItemID == itemID {
			total += li.Quantity
		}
	}
	return total
}
