package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stagelink/rentops/internal/cache"
	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/event"
	"github.com/stagelink/rentops/internal/repository"
	"github.com/stagelink/rentops/pkg/database"
	apperrors "github.com/stagelink/rentops/pkg/errors"
)

var (
	occupancyAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentops_occupancy_applied_total",
		Help: "Total number of committed occupancy applications.",
	})

	occupancyReversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentops_occupancy_reversed_total",
		Help: "Total number of committed occupancy reversals.",
	})
)

// OccupancyService owns every write that touches the denormalized occupied
// counters. Each operation runs as a single transaction: item rows are locked
// with SELECT FOR UPDATE, the capacity check and the counter update happen
// under the same lock, and the booking write commits atomically with them.
// There is no separate check-then-act window.
type OccupancyService struct {
	pool     database.DBTX
	ledger   repository.LedgerRepository
	producer *event.Producer
	cache    *cache.StatusCache
	logger   *slog.Logger
}

// NewOccupancyService creates a new occupancy service.
func NewOccupancyService(
	pool database.DBTX,
	ledger repository.LedgerRepository,
	producer *event.Producer,
	statusCache *cache.StatusCache,
	logger *slog.Logger,
) *OccupancyService {
	return &OccupancyService{
		pool:     pool,
		ledger:   ledger,
		producer: producer,
		cache:    statusCache,
		logger:   logger,
	}
}

// lockedItem is an item row read under FOR UPDATE.
type lockedItem struct {
	name      string
	unitType  domain.UnitType
	total     float64
	occupied  float64
	unitPrice float64
}

func lockItem(ctx context.Context, tx pgx.Tx, companyID, itemID string) (*lockedItem, error) {
	query := `
		SELECT name, unit_type, total_capacity, occupied_capacity, unit_price
		FROM items
		WHERE company_id = $1 AND id = $2
		FOR UPDATE`

	var item lockedItem
	err := tx.QueryRow(ctx, query, companyID, itemID).Scan(
		&item.name, &item.unitType, &item.total, &item.occupied, &item.unitPrice,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("item", itemID)
		}
		return nil, fmt.Errorf("lock item %s: %w", itemID, err)
	}
	return &item, nil
}

// aggregateLines merges duplicate item references so each item is locked and
// adjusted exactly once per transaction.
func aggregateLines(lines []domain.LineItem) []domain.LineItem {
	index := make(map[string]int, len(lines))
	var merged []domain.LineItem
	for _, li := range lines {
		if i, ok := index[li.ItemID]; ok {
			merged[i].Quantity += li.Quantity
			continue
		}
		index[li.ItemID] = len(merged)
		merged = append(merged, li)
	}
	return merged
}

// applyLines locks each referenced item and increments its occupied counter,
// failing with a CapacityError naming every short item. Quantities must
// already be normalized.
func (s *OccupancyService) applyLines(ctx context.Context, tx pgx.Tx, companyID string, lines []domain.LineItem) error {
	var short []domain.ItemAvailability

	for _, li := range aggregateLines(lines) {
		item, err := lockItem(ctx, tx, companyID, li.ItemID)
		if err != nil {
			return err
		}

		if item.occupied+li.Quantity > item.total {
			short = append(short, domain.ItemAvailability{
				ItemID:        li.ItemID,
				Name:          item.name,
				TotalCapacity: item.total,
				Requested:     li.Quantity,
				Available:     item.total - item.occupied,
				Satisfiable:   false,
			})
			continue
		}

		_, err = tx.Exec(ctx, `
			UPDATE items
			SET occupied_capacity = occupied_capacity + $1, updated_at = NOW()
			WHERE company_id = $2 AND id = $3`,
			li.Quantity, companyID, li.ItemID)
		if err != nil {
			return fmt.Errorf("increment occupied capacity for item %s: %w", li.ItemID, err)
		}
	}

	if len(short) > 0 {
		return &domain.CapacityError{Result: &domain.PeriodResult{Items: short}}
	}
	return nil
}

// reverseLines decrements the occupied counters for the given lines, clamping
// at zero so a drifted counter can never go negative.
func (s *OccupancyService) reverseLines(ctx context.Context, tx pgx.Tx, companyID string, lines []domain.LineItem) error {
	for _, li := range aggregateLines(lines) {
		_, err := tx.Exec(ctx, `
			UPDATE items
			SET occupied_capacity = GREATEST(occupied_capacity - $1, 0), updated_at = NOW()
			WHERE company_id = $2 AND id = $3`,
			li.Quantity, companyID, li.ItemID)
		if err != nil {
			return fmt.Errorf("decrement occupied capacity for item %s: %w", li.ItemID, err)
		}
	}
	return nil
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperrors.InvalidRange("start and end dates are required")
	}
	if !start.Before(end) {
		return apperrors.InvalidRange("start date must be before end date")
	}
	return nil
}

// CreateBooking inserts a booking with its line items and, when the initial
// status occupies capacity, reserves that capacity in the same transaction.
// Discrete quantities are truncated to whole units before anything is stored.
func (s *OccupancyService) CreateBooking(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	if booking.ClientID == "" {
		return nil, apperrors.InvalidInput("client_id is required")
	}
	if len(booking.LineItems) == 0 {
		return nil, apperrors.InvalidInput("booking must have at least one line item")
	}
	if err := validateRange(booking.StartDate, booking.EndDate); err != nil {
		return nil, err
	}
	if booking.Status == "" {
		booking.Status = domain.StatusPending
	}
	if !booking.Status.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid booking status %q", booking.Status))
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = domain.PaymentUnpaid
	}
	for _, li := range booking.LineItems {
		if li.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity for item %s must be positive", li.ItemID))
		}
	}

	booking.ID = uuid.New().String()
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin create booking transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, company_id, client_id, event_title, start_date, end_date, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		booking.ID, booking.CompanyID, booking.ClientID, booking.EventTitle,
		booking.StartDate, booking.EndDate, booking.Status, booking.PaymentStatus, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	occupies := booking.Status.Occupies()
	var short []domain.ItemAvailability

	stored := make([]domain.LineItem, 0, len(booking.LineItems))
	for _, li := range aggregateLines(booking.LineItems) {
		item, err := lockItem(ctx, tx, booking.CompanyID, li.ItemID)
		if err != nil {
			return nil, err
		}

		qty := domain.NormalizeQuantity(item.unitType, li.Quantity)
		if qty <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity %g for discrete item %s truncates to zero", li.Quantity, item.name))
		}

		if occupies {
			if item.occupied+qty > item.total {
				short = append(short, domain.ItemAvailability{
					ItemID:        li.ItemID,
					Name:          item.name,
					TotalCapacity: item.total,
					Requested:     qty,
					Available:     item.total - item.occupied,
					Satisfiable:   false,
				})
				continue
			}
			_, err = tx.Exec(ctx, `
				UPDATE items
				SET occupied_capacity = occupied_capacity + $1, updated_at = NOW()
				WHERE company_id = $2 AND id = $3`,
				qty, booking.CompanyID, li.ItemID)
			if err != nil {
				return nil, fmt.Errorf("increment occupied capacity for item %s: %w", li.ItemID, err)
			}
		}

		unitPrice := li.UnitPrice
		if unitPrice == 0 {
			unitPrice = item.unitPrice
		}

		line := domain.LineItem{
			ID:        uuid.New().String(),
			BookingID: booking.ID,
			ItemID:    li.ItemID,
			Quantity:  qty,
			UnitPrice: unitPrice,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO booking_line_items (id, booking_id, item_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			line.ID, line.BookingID, line.ItemID, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("insert line item: %w", err)
		}
		stored = append(stored, line)
	}

	if len(short) > 0 {
		return nil, &domain.CapacityError{Result: &domain.PeriodResult{
			StartDate: booking.StartDate,
			EndDate:   booking.EndDate,
			Items:     short,
		}}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create booking transaction: %w", err)
	}

	booking.LineItems = stored

	if occupies {
		s.afterApply(ctx, booking, stored)
	}

	s.logger.InfoContext(ctx, "booking created",
		slog.String("booking_id", booking.ID),
		slog.String("company_id", booking.CompanyID),
		slog.String("status", string(booking.Status)),
		slog.Int("line_count", len(stored)),
	)

	return booking, nil
}

// TransitionStatus moves a booking to a new status. Occupancy changes only
// when the transition crosses the active-set boundary: entering it reserves
// capacity (with the same locked check as creation), leaving it releases. The
// status update and the counter adjustments commit in one transaction.
func (s *OccupancyService) TransitionStatus(ctx context.Context, companyID, bookingID string, to domain.BookingStatus) (*domain.Booking, error) {
	if !to.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid booking status %q", to))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transition transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := lockBooking(ctx, tx, companyID, bookingID)
	if err != nil {
		return nil, err
	}

	from := booking.Status
	if from == to {
		// Nothing to do; avoid touching counters twice.
		return booking, nil
	}

	booking.LineItems, err = lineItemsInTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	entering := !from.Occupies() && to.Occupies()
	leaving := from.Occupies() && !to.Occupies()

	if entering {
		if err := s.applyLines(ctx, tx, companyID, booking.LineItems); err != nil {
			return nil, err
		}
	}
	if leaving {
		if err := s.reverseLines(ctx, tx, companyID, booking.LineItems); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE company_id = $2 AND id = $3`,
		to, companyID, bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition transaction: %w", err)
	}

	booking.Status = to

	if entering {
		s.afterApply(ctx, booking, booking.LineItems)
	}
	if leaving {
		s.afterReverse(ctx, booking, booking.LineItems)
	}

	s.logger.InfoContext(ctx, "booking status changed",
		slog.String("booking_id", bookingID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Bool("occupancy_changed", entering || leaving),
	)

	return booking, nil
}

// ReplaceLineItems swaps a booking's line items for a new set. For active
// bookings the old quantities are released and the new ones reserved under
// the same row locks, so concurrent bookings cannot slip between the two.
func (s *OccupancyService) ReplaceLineItems(ctx context.Context, companyID, bookingID string, newLines []domain.LineItem) (*domain.Booking, error) {
	if len(newLines) == 0 {
		return nil, apperrors.InvalidInput("booking must have at least one line item")
	}
	for _, li := range newLines {
		if li.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity for item %s must be positive", li.ItemID))
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin replace transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := lockBooking(ctx, tx, companyID, bookingID)
	if err != nil {
		return nil, err
	}

	oldLines, err := lineItemsInTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	occupies := booking.Status.Occupies()
	if occupies {
		if err := s.reverseLines(ctx, tx, companyID, oldLines); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM booking_line_items WHERE booking_id = $1`, bookingID); err != nil {
		return nil, fmt.Errorf("delete old line items: %w", err)
	}

	var short []domain.ItemAvailability
	stored := make([]domain.LineItem, 0, len(newLines))
	for _, li := range aggregateLines(newLines) {
		item, err := lockItem(ctx, tx, companyID, li.ItemID)
		if err != nil {
			return nil, err
		}

		qty := domain.NormalizeQuantity(item.unitType, li.Quantity)
		if qty <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity %g for discrete item %s truncates to zero", li.Quantity, item.name))
		}

		if occupies {
			if item.occupied+qty > item.total {
				short = append(short, domain.ItemAvailability{
					ItemID:        li.ItemID,
					Name:          item.name,
					TotalCapacity: item.total,
					Requested:     qty,
					Available:     item.total - item.occupied,
					Satisfiable:   false,
				})
				continue
			}
			_, err = tx.Exec(ctx, `
				UPDATE items
				SET occupied_capacity = occupied_capacity + $1, updated_at = NOW()
				WHERE company_id = $2 AND id = $3`,
				qty, companyID, li.ItemID)
			if err != nil {
				return nil, fmt.Errorf("increment occupied capacity for item %s: %w", li.ItemID, err)
			}
		}

		unitPrice := li.UnitPrice
		if unitPrice == 0 {
			unitPrice = item.unitPrice
		}

		line := domain.LineItem{
			ID:        uuid.New().String(),
			BookingID: bookingID,
			ItemID:    li.ItemID,
			Quantity:  qty,
			UnitPrice: unitPrice,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO booking_line_items (id, booking_id, item_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			line.ID, line.BookingID, line.ItemID, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("insert line item: %w", err)
		}
		stored = append(stored, line)
	}

	if len(short) > 0 {
		return nil, &domain.CapacityError{Result: &domain.PeriodResult{
			StartDate: booking.StartDate,
			EndDate:   booking.EndDate,
			Items:     short,
		}}
	}

	if _, err := tx.Exec(ctx, `UPDATE bookings SET updated_at = NOW() WHERE id = $1`, bookingID); err != nil {
		return nil, fmt.Errorf("touch booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace transaction: %w", err)
	}

	booking.LineItems = stored

	if occupies {
		s.afterReverse(ctx, booking, oldLines)
		s.afterApply(ctx, booking, stored)
	}

	s.logger.InfoContext(ctx, "booking line items replaced",
		slog.String("booking_id", bookingID),
		slog.Int("old_count", len(oldLines)),
		slog.Int("new_count", len(stored)),
	)

	return booking, nil
}

// UpdateBookingDetails changes a booking's dates, title, and payment status.
// Occupancy counters are date-independent, so no capacity work is needed.
func (s *OccupancyService) UpdateBookingDetails(ctx context.Context, companyID, bookingID, eventTitle string, start, end time.Time, payment domain.PaymentStatus) (*domain.Booking, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if payment == "" {
		payment = domain.PaymentUnpaid
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET event_title = $1, start_date = $2, end_date = $3, payment_status = $4, updated_at = NOW()
		WHERE company_id = $5 AND id = $6`,
		eventTitle, start, end, payment, companyID, bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("update booking details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.NotFound("booking", bookingID)
	}

	return s.ledger.GetBooking(ctx, companyID, bookingID)
}

// DeleteBooking removes a booking and, when it holds capacity, releases that
// capacity in the same transaction.
func (s *OccupancyService) DeleteBooking(ctx context.Context, companyID, bookingID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := lockBooking(ctx, tx, companyID, bookingID)
	if err != nil {
		return err
	}

	lines, err := lineItemsInTx(ctx, tx, bookingID)
	if err != nil {
		return err
	}

	occupied := booking.Status.Occupies()
	if occupied {
		if err := s.reverseLines(ctx, tx, companyID, lines); err != nil {
			return err
		}
	}

	// Line items go with the booking via ON DELETE CASCADE.
	if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE company_id = $1 AND id = $2`, companyID, bookingID); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}

	if occupied {
		s.afterReverse(ctx, booking, lines)
	}

	s.logger.InfoContext(ctx, "booking deleted",
		slog.String("booking_id", bookingID),
		slog.String("company_id", companyID),
		slog.Bool("capacity_released", occupied),
	)

	return nil
}

// GetBooking retrieves a booking with its line items.
func (s *OccupancyService) GetBooking(ctx context.Context, companyID, bookingID string) (*domain.Booking, error) {
	booking, err := s.ledger.GetBooking(ctx, companyID, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

// ListBookings returns a page of a company's bookings.
func (s *OccupancyService) ListBookings(ctx context.Context, companyID string, offset, limit int) ([]domain.Booking, int, error) {
	bookings, total, err := s.ledger.ListBookings(ctx, companyID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, total, nil
}

// afterApply publishes the occupancy.applied event and drops cached status
// snapshots. Both are best-effort; the transaction has already committed.
func (s *OccupancyService) afterApply(ctx context.Context, booking *domain.Booking, lines []domain.LineItem) {
	occupancyAppliedTotal.Inc()
	if err := s.producer.PublishOccupancyApplied(ctx, booking, lines); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish occupancy.applied event",
			slog.String("booking_id", booking.ID),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Invalidate(ctx, booking.CompanyID)
}

func (s *OccupancyService) afterReverse(ctx context.Context, booking *domain.Booking, lines []domain.LineItem) {
	occupancyReversedTotal.Inc()
	if err := s.producer.PublishOccupancyReversed(ctx, booking, lines); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish occupancy.reversed event",
			slog.String("booking_id", booking.ID),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Invalidate(ctx, booking.CompanyID)
}

func lockBooking(ctx context.Context, tx pgx.Tx, companyID, bookingID string) (*domain.Booking, error) {
	query := `
		SELECT id, company_id, client_id, event_title, start_date, end_date, status, payment_status, created_at, updated_at
		FROM bookings
		WHERE company_id = $1 AND id = $2
		FOR UPDATE`

	var b domain.Booking
	err := tx.QueryRow(ctx, query, companyID, bookingID).Scan(
		&b.ID, &b.CompanyID, &b.ClientID, &b.EventTitle,
		&b.StartDate, &b.EndDate, &b.Status, &b.PaymentStatus,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("booking", bookingID)
		}
		return nil, fmt.Errorf("lock booking %s: %w", bookingID, err)
	}
	return &b, nil
}

func lineItemsInTx(ctx context.Context, tx pgx.Tx, bookingID string) ([]domain.LineItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id, item_id, quantity, unit_price
		FROM booking_line_items
		WHERE booking_id = $1
		ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	var lines []domain.LineItem
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ID, &li.BookingID, &li.ItemID, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		lines = append(lines, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	return lines, nil
}
