package repository

import (
	"context"
	"time"

	"github.com/stagelink/rentops/internal/domain"
)

// CatalogRepository defines the interface for inventory item persistence.
type CatalogRepository interface {
	// GetItem retrieves a single item scoped to a company.
	GetItem(ctx context.Context, companyID, itemID string) (*domain.Item, error)

	// GetItems retrieves multiple items by ID, scoped to a company. Missing
	// IDs are simply absent from the result; callers decide whether that is
	// an error.
	GetItems(ctx context.Context, companyID string, itemIDs []string) ([]domain.Item, error)

	// GetItemByCode retrieves an item by its company-unique code.
	GetItemByCode(ctx context.Context, companyID, code string) (*domain.Item, error)

	// CreateItem inserts a new item and returns the stored row.
	CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error)

	// ListItems returns a page of a company's items ordered by name, along
	// with the total count.
	ListItems(ctx context.Context, companyID string, offset, limit int) ([]domain.Item, int, error)

	// CorrectOccupancyDrift rewrites, in one statement, every occupied
	// counter (across all companies) that disagrees with the sum of active
	// bookings, and returns the corrected rows. Normal occupancy changes go
	// through the occupancy service's transactions.
	CorrectOccupancyDrift(ctx context.Context) ([]domain.OccupancyDrift, error)
}

// LedgerRepository defines the read interface for bookings. Writes that touch
// occupancy counters are transactional and live in the occupancy service.
type LedgerRepository interface {
	// GetBooking retrieves a booking with its line items, scoped to a company.
	GetBooking(ctx context.Context, companyID, bookingID string) (*domain.Booking, error)

	// ListBookings returns a page of a company's bookings (without line
	// items) ordered by start date descending, along with the total count.
	ListBookings(ctx context.Context, companyID string, offset, limit int) ([]domain.Booking, int, error)

	// ListOverlappingActive returns active-status bookings whose inclusive
	// date range intersects [start, end], with line items loaded.
	// excludeBookingID, when non-empty, omits that booking from the result.
	ListOverlappingActive(ctx context.Context, companyID string, start, end time.Time, excludeBookingID string) ([]domain.Booking, error)

	// ListExpiredActive returns active-status bookings across all companies
	// whose end date has passed, with line items loaded.
	ListExpiredActive(ctx context.Context, now time.Time) ([]domain.Booking, error)
}
