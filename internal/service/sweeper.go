package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stagelink/rentops/internal/cache"
	"github.com/stagelink/rentops/internal/domain"
	"github.com/stagelink/rentops/internal/event"
	"github.com/stagelink/rentops/internal/repository"
)

var (
	sweptBookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentops_swept_bookings_total",
		Help: "Expired bookings processed by the sweeper, by result.",
	}, []string{"result"})

	driftCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentops_drift_corrections_total",
		Help: "Occupied counters corrected by reconciliation.",
	})
)

// Sweeper runs the two background maintenance jobs: expiring overdue bookings
// and reconciling drifted occupied counters.
type Sweeper struct {
	catalog  repository.CatalogRepository
	ledger   repository.LedgerRepository
	occupier event.StatusTransitioner
	producer *event.Producer
	cache    *cache.StatusCache
	logger   *slog.Logger
}

// NewSweeper creates a new sweeper.
func NewSweeper(
	catalog repository.CatalogRepository,
	ledger repository.LedgerRepository,
	occupier event.StatusTransitioner,
	producer *event.Producer,
	statusCache *cache.StatusCache,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		catalog:  catalog,
		ledger:   ledger,
		occupier: occupier,
		producer: producer,
		cache:    statusCache,
		logger:   logger,
	}
}

// SweepResult summarizes one sweep or reconcile run.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// SweepExpired completes every active booking whose end date has passed. Each
// booking is transitioned independently so one failure does not block the
// rest; the transition itself releases the booking's capacity.
func (s *Sweeper) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	expired, err := s.ledger.ListExpiredActive(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for i := range expired {
		b := &expired[i]

		if _, err := s.occupier.TransitionStatus(ctx, b.CompanyID, b.ID, domain.StatusCompleted); err != nil {
			result.Failed++
			sweptBookingsTotal.WithLabelValues("failed").Inc()
			s.logger.ErrorContext(ctx, "failed to expire booking",
				slog.String("booking_id", b.ID),
				slog.String("company_id", b.CompanyID),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.Processed++
		sweptBookingsTotal.WithLabelValues("completed").Inc()

		if err := s.producer.PublishBookingExpired(ctx, b); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish booking.expired event",
				slog.String("booking_id", b.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "expired bookings swept",
			slog.Int("processed", result.Processed),
			slog.Int("failed", result.Failed),
		)
	}

	return result, nil
}

// Reconcile recomputes every item's occupied counter from its active bookings
// and overwrites the stored value where the two disagree. Detection and
// correction happen in one statement on the repository side, so a booking
// committing mid-run cannot be clobbered with a stale aggregate. Drift should
// not happen; when it does, correcting it beats carrying it forward.
func (s *Sweeper) Reconcile(ctx context.Context) (SweepResult, error) {
	corrected, err := s.catalog.CorrectOccupancyDrift(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	touched := make(map[string]struct{})
	for _, d := range corrected {
		driftCorrectionsTotal.Inc()
		touched[d.CompanyID] = struct{}{}

		s.logger.WarnContext(ctx, "occupied counter drift corrected",
			slog.String("item_id", d.ItemID),
			slog.String("code", d.Code),
			slog.Float64("stored", d.Stored),
			slog.Float64("expected", d.Expected),
			slog.Float64("delta", d.Delta()),
		)

		if err := s.producer.PublishDriftCorrected(ctx, d); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish occupancy.drift_corrected event",
				slog.String("item_id", d.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}

	for companyID := range touched {
		s.cache.Invalidate(ctx, companyID)
	}

	return SweepResult{Processed: len(corrected)}, nil
}

// Run drives the sweeper on fixed intervals until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, sweepEvery, reconcileEvery time.Duration) {
	sweepTicker := time.NewTicker(sweepEvery)
	defer sweepTicker.Stop()
	reconcileTicker := time.NewTicker(reconcileEvery)
	defer reconcileTicker.Stop()

	s.logger.Info("sweeper started",
		slog.Duration("sweep_interval", sweepEvery),
		slog.Duration("reconcile_interval", reconcileEvery),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-sweepTicker.C:
			if _, err := s.SweepExpired(ctx, time.Now().UTC()); err != nil {
				s.logger.ErrorContext(ctx, "sweep run failed", slog.String("error", err.Error()))
			}
		case <-reconcileTicker.C:
			if _, err := s.Reconcile(ctx); err != nil {
				s.logger.ErrorContext(ctx, "reconcile run failed", slog.String("error", err.Error()))
			}
		}
	}
}
