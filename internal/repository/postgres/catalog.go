package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/pkg/database"
	apperrors "github.com/stagelink/rentops/pkg/errors"
)

const itemColumns = `id, company_id, name, code, unit_type, total_capacity, occupied_capacity, unit_price, created_at, updated_at`

// activeStatuses is the SQL fragment for statuses that hold capacity.
const activeStatuses = `('PENDING', 'CONFIRMED', 'IN_PROGRESS')`

// CatalogRepository implements repository.CatalogRepository using PostgreSQL.
type CatalogRepository struct {
	pool database.DBTX
}

// NewCatalogRepository creates a new PostgreSQL-backed catalog repository.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var item domain.Item
	err := row.Scan(
		&item.ID,
		&item.CompanyID,
		&item.Name,
		&item.Code,
		&item.UnitType,
		&item.TotalCapacity,
		&item.OccupiedCapacity,
		&item.UnitPrice,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem retrieves a single item scoped to a company.
func (r *CatalogRepository) GetItem(ctx context.Context, companyID, itemID string) (*domain.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE company_id = $1 AND id = $2`

	item, err := scanItem(r.pool.QueryRow(ctx, query, companyID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetItemByCode retrieves an item by its company-unique code.
func (r *CatalogRepository) GetItemByCode(ctx context.Context, companyID, code string) (*domain.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE company_id = $1 AND code = $2`

	item, err := scanItem(r.pool.QueryRow(ctx, query, companyID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get item by code: %w", err)
	}
	return item, nil
}

// GetItems retrieves multiple items by ID, scoped to a company.
func (r *CatalogRepository) GetItems(ctx context.Context, companyID string, itemIDs []string) ([]domain.Item, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE company_id = $1 AND id = ANY($2)
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, companyID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	return items, nil
}

// CreateItem inserts a new item and returns the stored row.
func (r *CatalogRepository) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	query := `
		INSERT INTO items (id, company_id, name, code, unit_type, total_capacity, occupied_capacity, unit_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
		RETURNING ` + itemColumns

	created, err := scanItem(r.pool.QueryRow(ctx, query,
		item.ID,
		item.CompanyID,
		item.Name,
		item.Code,
		item.UnitType,
		item.TotalCapacity,
		item.UnitPrice,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("item", "code", item.Code)
		}
		return nil, fmt.Errorf("create item: %w", err)
	}
	return created, nil
}

// ListItems returns a page of a company's items ordered by name.
func (r *CatalogRepository) ListItems(ctx context.Context, companyID string, offset, limit int) ([]domain.Item, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE company_id = $1`, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE company_id = $1
		ORDER BY name
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate items: %w", err)
	}

	return items, total, nil
}

// CorrectOccupancyDrift rewrites every occupied counter that disagrees with
// the sum of active bookings' line items, across all companies, and returns
// the corrected rows. Detection and correction run in one statement so a
// booking committing in between cannot get its counter clobbered with a
// stale aggregate.
func (r *CatalogRepository) CorrectOccupancyDrift(ctx context.Context) ([]domain.OccupancyDrift, error) {
	query := `
		UPDATE items
		SET occupied_capacity = d.expected, updated_at = NOW()
		FROM (
			SELECT i.id, i.company_id, i.code, i.occupied_capacity AS stored, COALESCE(active.qty, 0) AS expected
			FROM items i
			LEFT JOIN (
				SELECT li.item_id, SUM(li.quantity) AS qty
				FROM booking_line_items li
				JOIN bookings b ON b.id = li.booking_id
				WHERE b.status IN ` + activeStatuses + `
				GROUP BY li.item_id
			) active ON active.item_id = i.id
		) d
		WHERE items.id = d.id AND items.occupied_capacity <> d.expected
		RETURNING items.id, d.company_id, d.code, d.stored, d.expected`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("correct occupancy drift: %w", err)
	}
	defer rows.Close()

	var drifts []domain.OccupancyDrift
	for rows.Next() {
		var d domain.OccupancyDrift
		if err := rows.Scan(&d.ItemID, &d.CompanyID, &d.Code, &d.Stored, &d.Expected); err != nil {
			return nil, fmt.Errorf("scan drift row: %w", err)
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drift rows: %w", err)
	}

	return drifts, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	type sqlState interface{ SQLState() string }
	var pgErr sqlState
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
