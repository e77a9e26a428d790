package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/repository"
	apperrors "github.com/stagelink/rentops/pkg/errors"
	"github.com/stagelink/rentops/pkg/pagination"
	"github.com/stagelink/rentops/pkg/slug"
)

// CatalogService manages the rentable item catalog.
type CatalogService struct {
	catalog repository.CatalogRepository
	logger  *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(catalog repository.CatalogRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		logger:  logger,
	}
}

// CreateItem registers a new rentable item. When no code is given, one is
// generated from the name.
func (s *CatalogService) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if item.Name == "" {
		return nil, apperrors.InvalidInput("item name is required")
	}
	if item.TotalCapacity < 0 {
		return nil, apperrors.InvalidInput("total capacity must not be negative")
	}
	if item.UnitPrice < 0 {
		return nil, apperrors.InvalidInput("unit price must not be negative")
	}

	switch item.UnitType {
	case "":
		item.UnitType = domain.UnitDiscrete
	case domain.UnitDiscrete, domain.UnitContinuous:
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid unit type %q", item.UnitType))
	}

	if item.UnitType == domain.UnitDiscrete {
		normalized := domain.NormalizeQuantity(item.UnitType, item.TotalCapacity)
		if normalized != item.TotalCapacity {
			return nil, apperrors.InvalidInput("total capacity for a discrete item must be a whole number")
		}
	}

	if item.Code == "" {
		item.Code = slug.Generate(item.Name)
	}
	if item.Code == "" {
		return nil, apperrors.InvalidInput("item code could not be derived from name")
	}

	created, err := s.catalog.CreateItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.logger.InfoContext(ctx, "item created",
		slog.String("item_id", created.ID),
		slog.String("company_id", created.CompanyID),
		slog.String("code", created.Code),
	)

	return created, nil
}

// GetItem retrieves a single item.
func (s *CatalogService) GetItem(ctx context.Context, companyID, itemID string) (*domain.Item, error) {
	item, err := s.catalog.GetItem(ctx, companyID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetItemByCode retrieves an item by its company-unique code.
func (s *CatalogService) GetItemByCode(ctx context.Context, companyID, code string) (*domain.Item, error) {
	item, err := s.catalog.GetItemByCode(ctx, companyID, code)
	if err != nil {
		return nil, fmt.Errorf("get item by code: %w", err)
	}
	return item, nil
}

// ListItems returns a page of a company's items.
func (s *CatalogService) ListItems(ctx context.Context, companyID string, params pagination.Params) (*pagination.Result[domain.Item], error) {
	items, total, err := s.catalog.ListItems(ctx, companyID, params.Offset, params.PerPage)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	result := pagination.NewResult(items, total, params)
	return &result, nil
}
