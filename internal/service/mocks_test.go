package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/event"
	pkgkafka "github.com/stagelink/rentops/pkg/kafka"
)

// --- Mock CatalogRepository ---

type mockCatalogRepository struct {
	mock.Mock
}

func (m *mockCatalogRepository) GetItem(ctx context.Context, companyID, itemID string) (*domain.Item, error) {
	args := m.Called(ctx, companyID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *mockCatalogRepository) GetItems(ctx context.Context, companyID string, itemIDs []string) ([]domain.Item, error) {
	args := m.Called(ctx, companyID, itemIDs)
	return args.Get(0).([]domain.Item), args.Error(1)
}

func (m *mockCatalogRepository) GetItemByCode(ctx context.Context, companyID, code string) (*domain.Item, error) {
	args := m.Called(ctx, companyID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *mockCatalogRepository) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	args := m.Called(ctx, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *mockCatalogRepository) ListItems(ctx context.Context, companyID string, offset, limit int) ([]domain.Item, int, error) {
	args := m.Called(ctx, companyID, offset, limit)
	return args.Get(0).([]domain.Item), args.Int(1), args.Error(2)
}

func (m *mockCatalogRepository) CorrectOccupancyDrift(ctx context.Context) ([]domain.OccupancyDrift, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OccupancyDrift), args.Error(1)
}

// --- Mock LedgerRepository ---

type mockLedgerRepository struct {
	mock.Mock
}

func (m *mockLedgerRepository) GetBooking(ctx context.Context, companyID, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, companyID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *mockLedgerRepository) ListBookings(ctx context.Context, companyID string, offset, limit int) ([]domain.Booking, int, error) {
	args := m.Called(ctx, companyID, offset, limit)
	return args.Get(0).([]domain.Booking), args.Int(1), args.Error(2)
}

func (m *mockLedgerRepository) ListOverlappingActive(ctx context.Context, companyID string, start, end time.Time, excludeBookingID string) ([]domain.Booking, error) {
	args := m.Called(ctx, companyID, start, end, excludeBookingID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *mockLedgerRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

// --- Mock StatusTransitioner ---

type mockTransitioner struct {
	mock.Mock
}

func (m *mockTransitioner) TransitionStatus(ctx context.Context, companyID, bookingID string, to domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, companyID, bookingID, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestProducer builds a producer pointed at a broker that does not exist.
// Publishes fail and get logged; the services treat that as non-fatal.
func newTestProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}
