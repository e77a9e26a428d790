package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/pkg/database"
	apperrors "github.com/stagelink/rentops/pkg/errors"
)

const bookingColumns = `id, company_id, client_id, event_title, start_date, end_date, status, payment_status, created_at, updated_at`

// LedgerRepository implements repository.LedgerRepository using PostgreSQL.
type LedgerRepository struct {
	pool database.DBTX
}

// NewLedgerRepository creates a new PostgreSQL-backed booking ledger repository.
func NewLedgerRepository(pool database.DBTX) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID,
		&b.CompanyID,
		&b.ClientID,
		&b.EventTitle,
		&b.StartDate,
		&b.EndDate,
		&b.Status,
		&b.PaymentStatus,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBooking retrieves a booking with its line items, scoped to a company.
func (r *LedgerRepository) GetBooking(ctx context.Context, companyID, bookingID string) (*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE company_id = $1 AND id = $2`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, companyID, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	lineItems, err := r.lineItemsFor(ctx, []string{booking.ID})
	if err != nil {
		return nil, err
	}
	booking.LineItems = lineItems[booking.ID]

	return booking, nil
}

// ListBookings returns a page of a company's bookings ordered by start date
// descending. Line items are not loaded.
func (r *LedgerRepository) ListBookings(ctx context.Context, companyID string, offset, limit int) ([]domain.Booking, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE company_id = $1`, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE company_id = $1
		ORDER BY start_date DESC, created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}

// ListOverlappingActive returns active-status bookings whose inclusive date
// range intersects [start, end], with line items loaded. A booking overlaps
// when booking.start_date <= $end AND booking.end_date >= $start; touching
// boundaries count.
//
// The exclusion goes through NULLIF so an empty excludeBookingID folds to
// NULL instead of a plan-time ''::uuid cast error.
func (r *LedgerRepository) ListOverlappingActive(ctx context.Context, companyID string, start, end time.Time, excludeBookingID string) ([]domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE company_id = $1
		  AND status IN ` + activeStatuses + `
		  AND start_date <= $3
		  AND end_date >= $2
		  AND (NULLIF($4, '')::uuid IS NULL OR id <> NULLIF($4, '')::uuid)
		ORDER BY start_date`

	rows, err := r.pool.Query(ctx, query, companyID, start, end, excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("list overlapping bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}

	return r.attachLineItems(ctx, bookings)
}

// ListExpiredActive returns active-status bookings across all companies whose
// end date has passed, with line items loaded.
func (r *LedgerRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status IN ` + activeStatuses + `
		  AND end_date < $1
		ORDER BY end_date`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}

	return r.attachLineItems(ctx, bookings)
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

func (r *LedgerRepository) attachLineItems(ctx context.Context, bookings []domain.Booking) ([]domain.Booking, error) {
	if len(bookings) == 0 {
		return bookings, nil
	}

	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}

	byBooking, err := r.lineItemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range bookings {
		bookings[i].LineItems = byBooking[bookings[i].ID]
	}
	return bookings, nil
}

func (r *LedgerRepository) lineItemsFor(ctx context.Context, bookingIDs []string) (map[string][]domain.LineItem, error) {
	query := `
		SELECT id, booking_id, item_id, quantity, unit_price
		FROM booking_line_items
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, id`

	rows, err := r.pool.Query(ctx, query, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	byBooking := make(map[string][]domain.LineItem)
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ID, &li.BookingID, &li.ItemID, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		byBooking[li.BookingID] = append(byBooking[li.BookingID], li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	return byBooking, nil
}
