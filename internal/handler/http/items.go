package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/service"
	"github.com/stagelink/rentops/pkg/httputil"
	"github.com/stagelink/rentops/pkg/middleware"
	"github.com/stagelink/rentops/pkg/pagination"
	"github.com/stagelink/rentops/pkg/validator"
)

// ItemHandler handles HTTP requests for the item catalog.
type ItemHandler struct {
	catalog      *service.CatalogService
	availability *service.AvailabilityService
	logger       *slog.Logger
}

// NewItemHandler creates a new item HTTP handler.
func NewItemHandler(catalog *service.CatalogService, availability *service.AvailabilityService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		catalog:      catalog,
		availability: availability,
		logger:       logger,
	}
}

// CreateItemRequest is the JSON request body for registering an item.
type CreateItemRequest struct {
	Name          string  `json:"name" validate:"required,min=1,max=200"`
	Code          string  `json:"code" validate:"omitempty,max=100"`
	UnitType      string  `json:"unit_type" validate:"omitempty,oneof=continuous discrete"`
	TotalCapacity Numeric `json:"total_capacity" validate:"gte=0"`
	UnitPrice     Numeric `json:"unit_price" validate:"gte=0"`
}

// CreateItem handles POST /api/v1/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	item := &domain.Item{
		CompanyID:     middleware.CompanyIDFromContext(r.Context()),
		Name:          req.Name,
		Code:          req.Code,
		UnitType:      domain.UnitType(req.UnitType),
		TotalCapacity: float64(req.TotalCapacity),
		UnitPrice:     float64(req.UnitPrice),
	}

	created, err := h.catalog.CreateItem(r.Context(), item)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: created})
}

// GetItem handles GET /api/v1/items/{itemId}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "itemId"))
	if !ok {
		return
	}

	item, err := h.catalog.GetItem(r.Context(), middleware.CompanyIDFromContext(r.Context()), itemID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: item})
}

// GetItemByCode handles GET /api/v1/items/code/{code}
func (h *ItemHandler) GetItemByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "item code is required"},
		})
		return
	}

	item, err := h.catalog.GetItemByCode(r.Context(), middleware.CompanyIDFromContext(r.Context()), code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: item})
}

// ListItems handles GET /api/v1/items
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	result, err := h.catalog.ListItems(r.Context(), middleware.CompanyIDFromContext(r.Context()), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// CurrentStatus handles GET /api/v1/inventory/status
func (h *ItemHandler) CurrentStatus(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	result, err := h.availability.CurrentStatus(r.Context(), middleware.CompanyIDFromContext(r.Context()), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
