package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stagelink/rentops/internal/cache"
	"github.com/stagelink/rentops/internal/directory"
	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/repository"
	apperrors "github.com/stagelink/rentops/pkg/errors"
	"github.com/stagelink/rentops/pkg/pagination"
)

// AvailabilityService answers period availability questions and serves the
// current-status dashboard. It only reads; counter writes belong to the
// occupancy service.
type AvailabilityService struct {
	catalog   repository.CatalogRepository
	ledger    repository.LedgerRepository
	directory directory.ClientDirectory
	cache     *cache.StatusCache
	logger    *slog.Logger
}

// NewAvailabilityService creates a new availability service.
func NewAvailabilityService(
	catalog repository.CatalogRepository,
	ledger repository.LedgerRepository,
	dir directory.ClientDirectory,
	statusCache *cache.StatusCache,
	logger *slog.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		catalog:   catalog,
		ledger:    ledger,
		directory: dir,
		cache:     statusCache,
		logger:    logger,
	}
}

// CheckPeriod reports, for each requested item, how much capacity is already
// taken by active bookings overlapping the date range and whether the
// requested quantity fits. Boundaries are inclusive, so a booking ending on
// the query's start date still counts; same-day turnarounds are conflicts.
func (s *AvailabilityService) CheckPeriod(ctx context.Context, query domain.PeriodQuery) (*domain.PeriodResult, error) {
	if err := validateRange(query.StartDate, query.EndDate); err != nil {
		return nil, err
	}
	if len(query.Items) == 0 {
		return nil, apperrors.InvalidInput("at least one item is required")
	}
	for _, req := range query.Items {
		if req.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity for item %s must be positive", req.ItemID))
		}
	}

	ids := make([]string, 0, len(query.Items))
	for _, req := range query.Items {
		ids = append(ids, req.ItemID)
	}

	items, err := s.catalog.GetItems(ctx, query.CompanyID, ids)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	byID := make(map[string]domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, req := range query.Items {
		if _, ok := byID[req.ItemID]; !ok {
			return nil, apperrors.NotFound("item", req.ItemID)
		}
	}

	overlapping, err := s.ledger.ListOverlappingActive(ctx, query.CompanyID, query.StartDate, query.EndDate, query.ExcludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("load overlapping bookings: %w", err)
	}

	result := &domain.PeriodResult{
		StartDate:   query.StartDate,
		EndDate:     query.EndDate,
		Satisfiable: true,
		Items:       make([]domain.ItemAvailability, 0, len(query.Items)),
	}

	for _, req := range query.Items {
		item := byID[req.ItemID]
		requested := domain.NormalizeQuantity(item.UnitType, req.Quantity)
		if requested <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity %g for discrete item %s truncates to zero", req.Quantity, item.Name))
		}

		var booked float64
		var conflicts []domain.BookingConflict
		for _, b := range overlapping {
			qty := b.QuantityOf(req.ItemID)
			if qty <= 0 {
				continue
			}
			booked += qty
			conflicts = append(conflicts, domain.BookingConflict{
				BookingID:  b.ID,
				ClientName: s.directory.ClientName(ctx, query.CompanyID, b.ClientID),
				EventTitle: b.EventTitle,
				StartDate:  b.StartDate,
				EndDate:    b.EndDate,
				Quantity:   qty,
				Status:     b.Status,
			})
		}

		available := item.TotalCapacity - booked
		if available < 0 {
			available = 0
		}
		satisfiable := requested <= item.TotalCapacity-booked

		result.Items = append(result.Items, domain.ItemAvailability{
			ItemID:         req.ItemID,
			Name:           item.Name,
			TotalCapacity:  item.TotalCapacity,
			Requested:      requested,
			BookedInPeriod: booked,
			Available:      available,
			Satisfiable:    satisfiable,
			Conflicts:      conflicts,
		})
		if !satisfiable {
			result.Satisfiable = false
		}
	}

	s.logger.DebugContext(ctx, "period availability checked",
		slog.String("company_id", query.CompanyID),
		slog.Int("item_count", len(query.Items)),
		slog.Int("overlapping_bookings", len(overlapping)),
		slog.Bool("satisfiable", result.Satisfiable),
	)

	return result, nil
}

// CurrentStatus returns a page of per-item occupancy snapshots computed from
// the denormalized counters. Pages are cached per company and dropped whenever
// an occupancy change commits.
func (s *AvailabilityService) CurrentStatus(ctx context.Context, companyID string, params pagination.Params) (*pagination.Result[domain.ItemStatus], error) {
	if snap := s.cache.Get(ctx, companyID, params.Page, params.PerPage); snap != nil {
		result := pagination.NewResult(snap.Items, snap.TotalCount, params)
		return &result, nil
	}

	items, total, err := s.catalog.ListItems(ctx, companyID, params.Offset, params.PerPage)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	statuses := make([]domain.ItemStatus, 0, len(items))
	for i := range items {
		item := &items[i]
		statuses = append(statuses, domain.ItemStatus{
			ItemID:           item.ID,
			Name:             item.Name,
			Code:             item.Code,
			UnitType:         item.UnitType,
			TotalCapacity:    item.TotalCapacity,
			OccupiedCapacity: item.OccupiedCapacity,
			Available:        item.Available(),
			Utilization:      item.Utilization(),
		})
	}

	s.cache.Set(ctx, companyID, params.Page, params.PerPage, &cache.Snapshot{
		Items:      statuses,
		TotalCount: total,
	})

	result := pagination.NewResult(statuses, total, params)
	return &result, nil
}
