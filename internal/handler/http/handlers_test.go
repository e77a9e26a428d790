package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/rentops/internal/directory"
	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/event"
	"github.com/stagelink/rentops/internal/service"
	"github.com/stagelink/rentops/pkg/database"
	"github.com/stagelink/rentops/pkg/health"
	"github.com/stagelink/rentops/pkg/httputil"
	pkgkafka "github.com/stagelink/rentops/pkg/kafka"
)

// --- Mock Repositories ---

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

// --- Test Helpers ---

const (
	testCompany = "3f1c9a40-8b2d-4f6e-a1c7-5d9e8b2f4a60"
	testItem    = "2a9b6f1e-7c44-4e0c-9d1b-3f8a2c5d6e70"
	testClient  = "550e8400-e29b-41d4-a716-446655440001"
	testBooking = "9c4e1d2f-6a8b-4c3d-b5e7-1f2a3b4c5d6e"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

// fixture wires the full production router against mock repositories and a
// pgxmock pool.
type fixture struct {
	catalog *mockCatalogRepository
	ledger  *mockLedgerRepository
	pool    pgxmock.PgxPoolIface
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pool, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	catalog := new(mockCatalogRepository)
	ledger := new(mockLedgerRepository)
	logger := testLogger()
	producer := testEventProducer()

	catalogSvc := service.NewCatalogService(catalog, logger)
	availabilitySvc := service.NewAvailabilityService(catalog, ledger, directory.StaticDirectory{Name: "Teatro Municipal"}, nil, logger)
	occupancySvc := service.NewOccupancyService(pool, ledger, producer, nil, logger)
	sweeper := service.NewSweeper(catalog, ledger, occupancySvc, producer, nil, logger)

	router := NewRouter(catalogSvc, availabilitySvc, occupancySvc, sweeper, health.NewHandler(), "test", logger)

	return &fixture{
		catalog: catalog,
		ledger:  ledger,
		pool:    pool,
		router:  router,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Company-ID", testCompany)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return d
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
