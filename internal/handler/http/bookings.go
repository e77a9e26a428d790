package http

import (
	"encoding/json"
	"errors"
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

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	service *service.OccupancyService
	logger  *slog.Logger
}

// NewBookingHandler creates a new booking HTTP handler.
func NewBookingHandler(svc *service.OccupancyService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		service: svc,
		logger:  logger,
	}
}

// LineItemRequest is a single item/quantity pair in a booking request.
type LineItemRequest struct {
	ItemID    string  `json:"item_id" validate:"required,uuid"`
	Quantity  Numeric `json:"quantity" validate:"required,gt=0"`
	UnitPrice Numeric `json:"unit_price" validate:"gte=0"`
}

// CreateBookingRequest is the JSON request body for creating a booking.
type CreateBookingRequest struct {
	ClientID      string            `json:"client_id" validate:"required,uuid"`
	EventTitle    string            `json:"event_title" validate:"omitempty,max=300"`
	StartDate     string            `json:"start_date" validate:"required"`
	EndDate       string            `json:"end_date" validate:"required"`
	Status        string            `json:"status" validate:"omitempty,oneof=PENDING CONFIRMED IN_PROGRESS HOLD COMPLETED CANCELLED RETURNED"`
	PaymentStatus string            `json:"payment_status" validate:"omitempty,oneof=UNPAID PARTIAL PAID"`
	Items         []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateBookingRequest is the JSON request body for updating booking details.
type UpdateBookingRequest struct {
	EventTitle    string `json:"event_title" validate:"omitempty,max=300"`
	StartDate     string `json:"start_date" validate:"required"`
	EndDate       string `json:"end_date" validate:"required"`
	PaymentStatus string `json:"payment_status" validate:"omitempty,oneof=UNPAID PARTIAL PAID"`
}

// TransitionStatusRequest is the JSON request body for a status change.
type TransitionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING CONFIRMED IN_PROGRESS HOLD COMPLETED CANCELLED RETURNED"`
}

// ReplaceLineItemsRequest is the JSON request body for swapping line items.
type ReplaceLineItemsRequest struct {
	Items []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

// writeBookingError renders capacity failures with their full availability
// breakdown; everything else goes through the standard error mapping.
func writeBookingError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		httputil.WriteJSON(w, http.StatusConflict, httputil.Response{
			Data:  capErr.Result,
			Error: &httputil.ErrorResponse{Code: "INSUFFICIENT_CAPACITY", Message: capErr.Error()},
		})
		return
	}
	httputil.WriteError(w, r, err, logger)
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateBookingRequest
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

	booking := &domain.Booking{
		CompanyID:     middleware.CompanyIDFromContext(r.Context()),
		ClientID:      req.ClientID,
		EventTitle:    req.EventTitle,
		StartDate:     start,
		EndDate:       end,
		Status:        domain.BookingStatus(req.Status),
		PaymentStatus: domain.PaymentStatus(req.PaymentStatus),
	}
	for _, item := range req.Items {
		booking.LineItems = append(booking.LineItems, domain.LineItem{
			ItemID:    item.ItemID,
			Quantity:  float64(item.Quantity),
			UnitPrice: float64(item.UnitPrice),
		})
	}

	created, err := h.service.CreateBooking(r.Context(), booking)
	if err != nil {
		writeBookingError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: created})
}

// GetBooking handles GET /api/v1/bookings/{bookingId}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := httputil.ParseUUID(w, chi.URLParam(r, "bookingId"))
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(r.Context(), middleware.CompanyIDFromContext(r.Context()), bookingID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: booking})
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	bookings, total, err := h.service.ListBookings(r.Context(), middleware.CompanyIDFromContext(r.Context()), params.Offset, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result := pagination.NewResult(bookings, total, params)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// UpdateBooking handles PUT /api/v1/bookings/{bookingId}
func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := httputil.ParseUUID(w, chi.URLParam(r, "bookingId"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateBookingRequest
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

	booking, err := h.service.UpdateBookingDetails(
		r.Context(),
		middleware.CompanyIDFromContext(r.Context()),
		bookingID.String(),
		req.EventTitle,
		start, end,
		domain.PaymentStatus(req.PaymentStatus),
	)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: booking})
}

// TransitionStatus handles PUT /api/v1/bookings/{bookingId}/status
func (h *BookingHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := httputil.ParseUUID(w, chi.URLParam(r, "bookingId"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req TransitionStatusRequest
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

	booking, err := h.service.TransitionStatus(
		r.Context(),
		middleware.CompanyIDFromContext(r.Context()),
		bookingID.String(),
		domain.BookingStatus(req.Status),
	)
	if err != nil {
		writeBookingError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: booking})
}

// ReplaceLineItems handles PUT /api/v1/bookings/{bookingId}/items
func (h *BookingHandler) ReplaceLineItems(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := httputil.ParseUUID(w, chi.URLParam(r, "bookingId"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ReplaceLineItemsRequest
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

	var lines []domain.LineItem
	for _, item := range req.Items {
		lines = append(lines, domain.LineItem{
			ItemID:    item.ItemID,
			Quantity:  float64(item.Quantity),
			UnitPrice: float64(item.UnitPrice),
		})
	}

	booking, err := h.service.ReplaceLineItems(
		r.Context(),
		middleware.CompanyIDFromContext(r.Context()),
		bookingID.String(),
		lines,
	)
	if err != nil {
		writeBookingError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: booking})
}

// DeleteBooking handles DELETE /api/v1/bookings/{bookingId}
func (h *BookingHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := httputil.ParseUUID(w, chi.URLParam(r, "bookingId"))
	if !ok {
		return
	}

	err := h.service.DeleteBooking(r.Context(), middleware.CompanyIDFromContext(r.Context()), bookingID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
