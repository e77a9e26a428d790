package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/service"
	"github.com/stagelink/rentops/pkg/httputil"
	"github.com/stagelink/rentops/pkg/middleware"
	"github.com/stagelink/rentops/pkg/validator"
)

const dateLayout = "2006-01-02"

// parseDate accepts plain dates and full RFC 3339 timestamps, which some
// CRM integrations send. Time-of-day is dropped; bookings are day-granular.
func parseDate(value string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, false
		}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

func writeBadDate(w http.ResponseWriter, field string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: field + " must be a date in YYYY-MM-DD format"},
	})
}

// AvailabilityHandler handles HTTP requests for availability checks.
type AvailabilityHandler struct {
	service *service.AvailabilityService
	logger  *slog.Logger
}

// NewAvailabilityHandler creates a new availability HTTP handler.
func NewAvailabilityHandler(svc *service.AvailabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: svc,
		logger:  logger,
	}
}

// CheckPeriodRequest is the JSON request body for a period availability check.
type CheckPeriodRequest struct {
	StartDate        string                 `json:"start_date" validate:"required"`
	EndDate          string                 `json:"end_date" validate:"required"`
	Items            []RequestedItemRequest `json:"items" validate:"required,min=1,dive"`
	ExcludeBookingID string                 `json:"exclude_booking_id" validate:"omitempty,uuid"`
}

// RequestedItemRequest is a single item/quantity pair in an availability check.
type RequestedItemRequest struct {
	ItemID   string  `json:"item_id" validate:"required,uuid"`
	Quantity Numeric `json:"quantity" validate:"required,gt=0"`
}

// CheckPeriod handles POST /api/v1/availability/check
func (h *AvailabilityHandler) CheckPeriod(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CheckPeriodRequest
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

	start, ok := parseDate(req.StartDate)
	if !ok {
		writeBadDate(w, "start_date")
		return
	}
	end, ok := parseDate(req.EndDate)
	if !ok {
		writeBadDate(w, "end_date")
		return
	}

	query := domain.PeriodQuery{
		CompanyID:        middleware.CompanyIDFromContext(r.Context()),
		StartDate:        start,
		EndDate:          end,
		ExcludeBookingID: req.ExcludeBookingID,
	}
	for _, item := range req.Items {
		query.Items = append(query.Items, domain.RequestedItem{ItemID: item.ItemID, Quantity: float64(item.Quantity)})
	}

	result, err := h.service.CheckPeriod(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
