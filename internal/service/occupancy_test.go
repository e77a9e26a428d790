package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/pkg/database"
	apperrors "github.com/stagelink/rentops/pkg/errors"
)

const (
	testCompanyID = "3f1c9a40-8b2d-4f6e-a1c7-5d9e8b2f4a60"
	testItemID    = "2a9b6f1e-7c44-4e0c-9d1b-3f8a2c5d6e70"
	testBookingID = "9c4e1d2f-6a8b-4c3d-b5e7-1f2a3b4c5d6e"
)

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func newOccupancyService(t *testing.T) (*OccupancyService, pgxmock.PgxPoolIface, *mockLedgerRepository) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	ledger := new(mockLedgerRepository)
	svc := NewOccupancyService(mock, ledger, newTestProducer(), nil, newTestLogger())
	return svc, mock, ledger
}

func lockedItemRows(mock pgxmock.PgxPoolIface, unitType string, total, occupied, price float64) *pgxmock.Rows {
	return mock.NewRows([]string{"name", "unit_type", "total_capacity", "occupied_capacity", "unit_price"}).
		AddRow("Painel de LED", unitType, total, occupied, price)
}

func lockedBookingRows(mock pgxmock.PgxPoolIface, status domain.BookingStatus) *pgxmock.Rows {
	now := time.Now()
	return mock.NewRows([]string{
		"id", "company_id", "client_id", "event_title", "start_date", "end_date",
		"status", "payment_status", "created_at", "updated_at",
	}).AddRow(testBookingID, testCompanyID, "client-1", "Casamento na Serra", date(10), date(12),
		string(status), "UNPAID", now, now)
}

func bookingLineRows(mock pgxmock.PgxPoolIface, quantity float64) *pgxmock.Rows {
	return mock.NewRows([]string{"id", "booking_id", "item_id", "quantity", "unit_price"}).
		AddRow("line-1", testBookingID, testItemID, quantity, 150.0)
}

func TestCreateBooking_ReservesCapacity(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), testCompanyID, "client-1", "Casamento na Serra",
			date(10), date(12), domain.StatusConfirmed, domain.PaymentUnpaid, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, testItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 20, 6, 150))
	mock.ExpectExec("UPDATE items").
		WithArgs(3.0, testCompanyID, testItemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO booking_line_items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), testItemID, 3.0, 150.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	booking, err := svc.CreateBooking(ctx, &domain.Booking{
		CompanyID:  testCompanyID,
		ClientID:   "client-1",
		EventTitle: "Casamento na Serra",
		StartDate:  date(10),
		EndDate:    date(12),
		Status:     domain.StatusConfirmed,
		// 3.7 of a discrete item truncates to 3 whole units.
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 3.7}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, booking.ID)
	require.Len(t, booking.LineItems, 1)
	assert.Equal(t, 3.0, booking.LineItems[0].Quantity)
	assert.Equal(t, 150.0, booking.LineItems[0].UnitPrice)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_InsufficientCapacity(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, testItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 20, 15, 150))
	mock.ExpectRollback()

	_, err := svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		ClientID:  "client-1",
		StartDate: date(10),
		EndDate:   date(12),
		Status:    domain.StatusConfirmed,
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 10}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCapacity)

	var capErr *domain.CapacityError
	require.True(t, errors.As(err, &capErr))
	require.Len(t, capErr.Result.Items, 1)
	assert.Equal(t, 10.0, capErr.Result.Items[0].Requested)
	assert.Equal(t, 5.0, capErr.Result.Items[0].Available)
	assert.False(t, capErr.Result.Items[0].Satisfiable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_PendingStatusOccupies(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, testItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 20, 6, 150))
	mock.ExpectExec("UPDATE items").
		WithArgs(2.0, testCompanyID, testItemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO booking_line_items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	booking, err := svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		ClientID:  "client-1",
		StartDate: date(10),
		EndDate:   date(12),
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 2}},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_HoldStatusSkipsCounters(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, testItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 20, 19, 150))
	mock.ExpectExec("INSERT INTO booking_line_items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	// A HOLD booking for more than the free capacity still succeeds; only
	// active statuses occupy.
	booking, err := svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		ClientID:  "client-1",
		StartDate: date(10),
		EndDate:   date(12),
		Status:    domain.StatusHold,
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 5}},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusHold, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_DiscreteQuantityTruncatesToZero(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, testItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 20, 0, 150))
	mock.ExpectRollback()

	_, err := svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		ClientID:  "client-1",
		StartDate: date(10),
		EndDate:   date(12),
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 0.5}},
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_Validation(t *testing.T) {
	svc, _, _ := newOccupancyService(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		StartDate: date(10),
		EndDate:   date(12),
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		ClientID:  "client-1",
		StartDate: date(10),
		EndDate:   date(12),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateBooking(ctx, &domain.Booking{
		CompanyID: testCompanyID,
		ClientID:  "client-1",
		StartDate: date(12),
		EndDate:   date(10),
		LineItems: []domain.LineItem{{ItemID: testItemID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestTransitionStatus_LeavingActiveReleasesCapacity(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusConfirmed))
	mock.ExpectQuery("SELECT .+ FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnRows(bookingLineRows(mock, 4))
	mock.ExpectExec("UPDATE items").
		WithArgs(4.0, testCompanyID, testItemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(domain.StatusCancelled, testCompanyID, testBookingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	booking, err := svc.TransitionStatus(ctx, testCompanyID, testBookingID, domain.StatusCancelled)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_EnteringActiveChecksCapacity(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusHold))
	mock.ExpectQuery("SELECT .+ FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnRows(bookingLineRows(mock, 4))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, testItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 20, 18, 150))
	mock.ExpectRollback()

	// Only 2 units free; promoting a HOLD of 4 must fail.
	_, err := svc.TransitionStatus(ctx, testCompanyID, testBookingID, domain.StatusConfirmed)

	assert.ErrorIs(t, err, apperrors.ErrInsufficientCapacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_BetweenActiveStatusesLeavesCountersAlone(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusConfirmed))
	mock.ExpectQuery("SELECT .+ FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnRows(bookingLineRows(mock, 4))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(domain.StatusInProgress, testCompanyID, testBookingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	booking, err := svc.TransitionStatus(ctx, testCompanyID, testBookingID, domain.StatusInProgress)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_SameStatusIsNoOp(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusConfirmed))
	mock.ExpectRollback()

	booking, err := svc.TransitionStatus(ctx, testCompanyID, testBookingID, domain.StatusConfirmed)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_NotFound(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.TransitionStatus(ctx, testCompanyID, testBookingID, domain.StatusCancelled)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus_InvalidStatus(t *testing.T) {
	svc, _, _ := newOccupancyService(t)

	_, err := svc.TransitionStatus(context.Background(), testCompanyID, testBookingID, "SHIPPED")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDeleteBooking_ReleasesCapacity(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusConfirmed))
	mock.ExpectQuery("SELECT .+ FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnRows(bookingLineRows(mock, 4))
	mock.ExpectExec("UPDATE items").
		WithArgs(4.0, testCompanyID, testItemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := svc.DeleteBooking(ctx, testCompanyID, testBookingID)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBooking_CancelledSkipsCounters(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusCancelled))
	mock.ExpectQuery("SELECT .+ FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnRows(bookingLineRows(mock, 4))
	mock.ExpectExec("DELETE FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := svc.DeleteBooking(ctx, testCompanyID, testBookingID)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceLineItems_SwapsUnderOneTransaction(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	const newItemID = "5b8c2d1e-9f40-4a6b-8c7d-2e3f4a5b6c7d"

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT .+ FROM bookings").
		WithArgs(testCompanyID, testBookingID).
		WillReturnRows(lockedBookingRows(mock, domain.StatusConfirmed))
	mock.ExpectQuery("SELECT .+ FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnRows(bookingLineRows(mock, 4))
	mock.ExpectExec("UPDATE items").
		WithArgs(4.0, testCompanyID, testItemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM booking_line_items").
		WithArgs(testBookingID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(testCompanyID, newItemID).
		WillReturnRows(lockedItemRows(mock, "discrete", 10, 2, 80))
	mock.ExpectExec("UPDATE items").
		WithArgs(6.0, testCompanyID, newItemID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO booking_line_items").
		WithArgs(pgxmock.AnyArg(), testBookingID, newItemID, 6.0, 80.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE bookings").
		WithArgs(testBookingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	booking, err := svc.ReplaceLineItems(ctx, testCompanyID, testBookingID, []domain.LineItem{
		{ItemID: newItemID, Quantity: 6},
	})

	require.NoError(t, err)
	require.Len(t, booking.LineItems, 1)
	assert.Equal(t, newItemID, booking.LineItems[0].ItemID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBookingDetails_NotFound(t *testing.T) {
	svc, mock, _ := newOccupancyService(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE bookings").
		WithArgs("Novo Título", date(10), date(12), domain.PaymentPartial, testCompanyID, testBookingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := svc.UpdateBookingDetails(ctx, testCompanyID, testBookingID, "Novo Título", date(10), date(12), domain.PaymentPartial)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
