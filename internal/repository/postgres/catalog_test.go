package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/pkg/database"
	apperrors "github.com/stagelink/rentops/pkg/errors"
)

const (
	companyID = "3f1c9a40-8b2d-4f6e-a1c7-5d9e8b2f4a60"
	itemID    = "2a9b6f1e-7c44-4e0c-9d1b-3f8a2c5d6e70"
)

func itemRows(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	now := time.Now()
	return mock.NewRows([]string{
		"id", "company_id", "name", "code", "unit_type",
		"total_capacity", "occupied_capacity", "unit_price", "created_at", "updated_at",
	}).AddRow(itemID, companyID, "Painel de LED", "painel-de-led", "discrete", 20.0, 6.0, 150.0, now, now)
}

func TestCatalogRepository_GetItem(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(companyID, itemID).
		WillReturnRows(itemRows(mock))

	repo := NewCatalogRepository(mock)
	item, err := repo.GetItem(context.Background(), companyID, itemID)
	require.NoError(t, err)

	assert.Equal(t, "Painel de LED", item.Name)
	assert.Equal(t, domain.UnitDiscrete, item.UnitType)
	assert.Equal(t, 14.0, item.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_GetItem_NotFound(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(companyID, itemID).
		WillReturnError(pgx.ErrNoRows)

	repo := NewCatalogRepository(mock)
	_, err = repo.GetItem(context.Background(), companyID, itemID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCatalogRepository_GetItems_EmptyInput(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCatalogRepository(mock)
	items, err := repo.GetItems(context.Background(), companyID, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_CreateItem(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO items").
		WithArgs(itemID, companyID, "Painel de LED", "painel-de-led", domain.UnitDiscrete, 20.0, 150.0).
		WillReturnRows(itemRows(mock))

	repo := NewCatalogRepository(mock)
	created, err := repo.CreateItem(context.Background(), &domain.Item{
		ID:            itemID,
		CompanyID:     companyID,
		Name:          "Painel de LED",
		Code:          "painel-de-led",
		UnitType:      domain.UnitDiscrete,
		TotalCapacity: 20,
		UnitPrice:     150,
	})
	require.NoError(t, err)
	assert.Equal(t, itemID, created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_CreateItem_DuplicateCode(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO items").
		WithArgs(itemID, companyID, "Painel de LED", "painel-de-led", domain.UnitDiscrete, 20.0, 150.0).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "items_company_code_unique"})

	repo := NewCatalogRepository(mock)
	_, err = repo.CreateItem(context.Background(), &domain.Item{
		ID:            itemID,
		CompanyID:     companyID,
		Name:          "Painel de LED",
		Code:          "painel-de-led",
		UnitType:      domain.UnitDiscrete,
		TotalCapacity: 20,
		UnitPrice:     150,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Contains(t, err.Error(), `code "painel-de-led"`)
}

func TestCatalogRepository_ListItems(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(companyID).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM items").
		WithArgs(companyID, 20, 0).
		WillReturnRows(itemRows(mock))

	repo := NewCatalogRepository(mock)
	items, total, err := repo.ListItems(context.Background(), companyID, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "painel-de-led", items[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_CorrectOccupancyDrift(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	// Detection and correction must be one UPDATE so a booking committing
	// between a scan and a write cannot be clobbered.
	mock.ExpectQuery("UPDATE items .+ RETURNING").
		WillReturnRows(mock.NewRows([]string{"id", "company_id", "code", "stored", "expected"}).
			AddRow(itemID, companyID, "painel-de-led", 10.0, 6.0))

	repo := NewCatalogRepository(mock)
	drifts, err := repo.CorrectOccupancyDrift(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, -4.0, drifts[0].Delta())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_CorrectOccupancyDrift_NoDrift(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("UPDATE items .+ RETURNING").
		WillReturnRows(mock.NewRows([]string{"id", "company_id", "code", "stored", "expected"}))

	repo := NewCatalogRepository(mock)
	drifts, err := repo.CorrectOccupancyDrift(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drifts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
