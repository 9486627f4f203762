package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/affirm-gateway/api/controllers"
	"github.com/angelmondragon/affirm-gateway/api/middleware"
	"github.com/angelmondragon/affirm-gateway/internal/charges"
	"github.com/angelmondragon/affirm-gateway/internal/checkout"
	"github.com/angelmondragon/affirm-gateway/pkg/affirm"
	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
	"github.com/angelmondragon/affirm-gateway/pkg/redis"
)

// ChargeService is the charge lifecycle surface the API exposes.
type ChargeService interface {
	CompleteCheckout(ctx context.Context, input charges.CompleteCheckoutInput) (*charges.CompleteCheckoutResult, error)
	Capture(ctx context.Context, orderID uuid.UUID) (*affirm.CaptureResult, error)
	Void(ctx context.Context, orderID uuid.UUID, cancelOrder bool) (*affirm.VoidResult, error)
	Refund(ctx context.Context, input charges.RefundInput) (*charges.RefundOutcome, error)
	ReadCharge(ctx context.Context, orderID uuid.UUID) (*affirm.Charge, error)
	TransactionURL(ctx context.Context, orderID uuid.UUID) (string, error)
}

// CheckoutService builds widget sessions and eligibility checks.
type CheckoutService interface {
	BuildSession(ctx context.Context, orderID uuid.UUID) (*checkout.Session, error)
	CheckEligibility(ctx context.Context, orderID uuid.UUID) (*checkout.Eligibility, error)
}

// OrdersRepository is the slice of the orders store the API reads and writes.
type OrdersRepository interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersRepo OrdersRepository,
	chargeService ChargeService,
	checkoutService CheckoutService,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var readyCache redis.Pinger
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		readyCache = redisClient
		idemStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, readyCache))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(ordersRepo, logg))
			r.Get("/{orderID}", controllers.GetOrder(ordersRepo, logg))
			r.Get("/{orderID}/notes", controllers.ListOrderNotes(ordersRepo, logg))
			r.Get("/{orderID}/eligibility", controllers.CheckEligibility(checkoutService, logg))
		})

		r.Route("/checkout/{orderID}", func(r chi.Router) {
			r.Post("/session", controllers.CheckoutSession(checkoutService, logg))
			r.Post("/complete", controllers.CompleteCheckout(chargeService, logg))
		})

		r.Route("/admin/orders/{orderID}", func(r chi.Router) {
			r.Post("/capture", controllers.AdminCaptureCharge(chargeService, logg))
			r.Post("/void", controllers.AdminVoidCharge(chargeService, logg))
			r.Post("/refund", controllers.AdminRefundCharge(chargeService, logg))
			r.Get("/charge", controllers.AdminReadCharge(chargeService, logg))
		})
	})

	return r
}
