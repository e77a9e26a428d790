package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stagelink/rentops/internal/domain"
	pkgkafka "github.com/stagelink/rentops/pkg/kafka"
)

// Kafka topic constants for occupancy and booking domain events.
const (
	TopicOccupancyApplied  = "rentops.occupancy.applied"
	TopicOccupancyReversed = "rentops.occupancy.reversed"
	TopicDriftCorrected    = "rentops.occupancy.drift_corrected"
	TopicBookingExpired    = "rentops.booking.expired"
)

// Aggregate type constant.
const AggregateTypeBooking = "booking"

// Source identifier for events originating from this service.
const SourceRentops = "rentops"

// OccupancyChangeData is the payload for occupancy.applied and
// occupancy.reversed events.
type OccupancyChangeData struct {
	CompanyID string              `json:"company_id"`
	BookingID string              `json:"booking_id"`
	Status    string              `json:"status"`
	Lines     []OccupancyLineData `json:"lines"`
}

// OccupancyLineData is one item's share of an occupancy change.
type OccupancyLineData struct {
	ItemID   string  `json:"item_id"`
	Quantity float64 `json:"quantity"`
}

// DriftCorrectedData is the payload for an occupancy.drift_corrected event.
type DriftCorrectedData struct {
	CompanyID string  `json:"company_id"`
	ItemID    string  `json:"item_id"`
	Code      string  `json:"code"`
	Stored    float64 `json:"stored"`
	Expected  float64 `json:"expected"`
}

// BookingExpiredData is the payload for a booking.expired event.
type BookingExpiredData struct {
	CompanyID string `json:"company_id"`
	BookingID string `json:"booking_id"`
	EndDate   string `json:"end_date"`
}

// Producer publishes occupancy domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func occupancyData(booking *domain.Booking, lines []domain.LineItem) OccupancyChangeData {
	data := OccupancyChangeData{
		CompanyID: booking.CompanyID,
		BookingID: booking.ID,
		Status:    string(booking.Status),
	}
	for _, li := range lines {
		data.Lines = append(data.Lines, OccupancyLineData{ItemID: li.ItemID, Quantity: li.Quantity})
	}
	return data
}

// PublishOccupancyApplied publishes an occupancy.applied event.
func (p *Producer) PublishOccupancyApplied(ctx context.Context, booking *domain.Booking, lines []domain.LineItem) error {
	event, err := pkgkafka.NewEvent(TopicOccupancyApplied, booking.ID, AggregateTypeBooking, SourceRentops, occupancyData(booking, lines))
	if err != nil {
		return fmt.Errorf("create occupancy.applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOccupancyApplied, event); err != nil {
		return fmt.Errorf("publish occupancy.applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published occupancy.applied event",
		slog.String("booking_id", booking.ID),
		slog.Int("line_count", len(lines)),
	)

	return nil
}

// PublishOccupancyReversed publishes an occupancy.reversed event.
func (p *Producer) PublishOccupancyReversed(ctx context.Context, booking *domain.Booking, lines []domain.LineItem) error {
	event, err := pkgkafka.NewEvent(TopicOccupancyReversed, booking.ID, AggregateTypeBooking, SourceRentops, occupancyData(booking, lines))
	if err != nil {
		return fmt.Errorf("create occupancy.reversed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOccupancyReversed, event); err != nil {
		return fmt.Errorf("publish occupancy.reversed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published occupancy.reversed event",
		slog.String("booking_id", booking.ID),
		slog.Int("line_count", len(lines)),
	)

	return nil
}

// PublishDriftCorrected publishes an occupancy.drift_corrected event.
func (p *Producer) PublishDriftCorrected(ctx context.Context, drift domain.OccupancyDrift) error {
	data := DriftCorrectedData{
		CompanyID: drift.CompanyID,
		ItemID:    drift.ItemID,
		Code:      drift.Code,
		Stored:    drift.Stored,
		Expected:  drift.Expected,
	}

	event, err := pkgkafka.NewEvent(TopicDriftCorrected, drift.ItemID, "item", SourceRentops, data)
	if err != nil {
		return fmt.Errorf("create occupancy.drift_corrected event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicDriftCorrected, event); err != nil {
		return fmt.Errorf("publish occupancy.drift_corrected event: %w", err)
	}

	p.logger.DebugContext(ctx, "published occupancy.drift_corrected event",
		slog.String("item_id", drift.ItemID),
		slog.Float64("stored", drift.Stored),
		slog.Float64("expected", drift.Expected),
	)

	return nil
}

// PublishBookingExpired publishes a booking.expired event after the sweeper
// moves an overdue booking out of its active status.
func (p *Producer) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	data := BookingExpiredData{
		CompanyID: booking.CompanyID,
		BookingID: booking.ID,
		EndDate:   booking.EndDate.Format("2006-01-02"),
	}

	event, err := pkgkafka.NewEvent(TopicBookingExpired, booking.ID, AggregateTypeBooking, SourceRentops, data)
	if err != nil {
		return fmt.Errorf("create booking.expired event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicBookingExpired, event); err != nil {
		return fmt.Errorf("publish booking.expired event: %w", err)
	}

	p.logger.DebugContext(ctx, "published booking.expired event",
		slog.String("booking_id", booking.ID),
	)

	return nil
}
