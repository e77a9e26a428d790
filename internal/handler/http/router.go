package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagelink/rentops/docs"
	"github.com/stagelink/rentops/internal/service"
	"github.com/stagelink/rentops/pkg/health"
	"github.com/stagelink/rentops/pkg/middleware"
)

// NewRouter creates a chi router with all rentops routes registered. Every
// /api/v1 route runs behind the tenant middleware, so handlers can rely on a
// company ID being present in the request context.
func NewRouter(
	catalogService *service.CatalogService,
	availabilityService *service.AvailabilityService,
	occupancyService *service.OccupancyService,
	sweeper *service.Sweeper,
	healthHandler *health.Handler,
	environment string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.Environment = environment
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("rentops"))
	r.Use(middleware.PrometheusMetrics("rentops"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// API documentation
	r.Get("/swagger", docs.ServeUI)
	r.Get("/swagger/doc.json", docs.ServeSpec)

	itemHandler := NewItemHandler(catalogService, availabilityService, logger)
	availabilityHandler := NewAvailabilityHandler(availabilityService, logger)
	bookingHandler := NewBookingHandler(occupancyService, logger)
	maintenanceHandler := NewMaintenanceHandler(sweeper, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant())
		r.Use(middleware.RequestLogger(logger))

		r.Route("/items", func(r chi.Router) {
			r.Post("/", itemHandler.CreateItem)
			r.Get("/", itemHandler.ListItems)
			r.Get("/{itemId}", itemHandler.GetItem)
			r.Get("/code/{code}", itemHandler.GetItemByCode)
		})

		r.Get("/inventory/status", itemHandler.CurrentStatus)
		r.Post("/availability/check", availabilityHandler.CheckPeriod)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", bookingHandler.CreateBooking)
			r.Get("/", bookingHandler.ListBookings)
			r.Get("/{bookingId}", bookingHandler.GetBooking)
			r.Put("/{bookingId}", bookingHandler.UpdateBooking)
			r.Delete("/{bookingId}", bookingHandler.DeleteBooking)
			r.Put("/{bookingId}/status", bookingHandler.TransitionStatus)
			r.Put("/{bookingId}/items", bookingHandler.ReplaceLineItems)
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/sweep", maintenanceHandler.SweepExpired)
			r.Post("/reconcile", maintenanceHandler.Reconcile)
		})
	})

	return r
}
