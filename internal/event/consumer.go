package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stagelink/rentops/internal/domain"
	pkgkafka "github.com/stagelink/rentops/pkg/kafka"
)

// TopicCRMStatusChanged carries booking status changes made in the legacy CRM
// UI. Consuming it keeps occupancy counters consistent when a status change
// bypasses this service's HTTP API.
const TopicCRMStatusChanged = "rentops.crm.booking.status_changed"

// StatusTransitioner is the occupancy operation required by the consumer.
type StatusTransitioner interface {
	TransitionStatus(ctx context.Context, companyID, bookingID string, to domain.BookingStatus) (*domain.Booking, error)
}

// CRMStatusChangedData is the expected payload of a crm.booking.status_changed event.
type CRMStatusChangedData struct {
	CompanyID string `json:"company_id"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// Consumer processes incoming Kafka events.
type Consumer struct {
	logger  *slog.Logger
	service StatusTransitioner
}

// NewConsumer creates a new event consumer.
func NewConsumer(service StatusTransitioner, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleCRMStatusChanged processes crm.booking.status_changed events by
// running the same transactional status transition the HTTP API uses, so
// occupancy counters stay consistent with CRM-driven changes.
func (c *Consumer) HandleCRMStatusChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data CRMStatusChangedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal crm.booking.status_changed data: %w", err)
	}

	status := domain.BookingStatus(data.Status)
	if !status.Valid() {
		// Bad payload; retrying will not help.
		c.logger.WarnContext(ctx, "ignoring status change with unknown status",
			slog.String("booking_id", data.BookingID),
			slog.String("status", data.Status),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "processing crm.booking.status_changed event",
		slog.String("booking_id", data.BookingID),
		slog.String("status", data.Status),
	)

	if _, err := c.service.TransitionStatus(ctx, data.CompanyID, data.BookingID, status); err != nil {
		return fmt.Errorf("transition booking %s to %s: %w", data.BookingID, data.Status, err)
	}

	return nil
}
