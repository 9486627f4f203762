package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/internal/charges"
	"github.com/angelmondragon/affirm-gateway/internal/checkout"
	"github.com/angelmondragon/affirm-gateway/pkg/affirm"
	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubChargeService struct{}

func (stubChargeService) CompleteCheckout(ctx context.Context, input charges.CompleteCheckoutInput) (*charges.CompleteCheckoutResult, error) {
	return &charges.CompleteCheckoutResult{
		ChargeID:    "CHG-1",
		Captured:    true,
		OrderStatus: enums.OrderStatusProcessing,
	}, nil
}

func (stubChargeService) Capture(ctx context.Context, orderID uuid.UUID) (*affirm.CaptureResult, error) {
	return &affirm.CaptureResult{ID: "CHG-1"}, nil
}

func (stubChargeService) Void(ctx context.Context, orderID uuid.UUID, cancelOrder bool) (*affirm.VoidResult, error) {
	return &affirm.VoidResult{ID: "CHG-1"}, nil
}

func (stubChargeService) Refund(ctx context.Context, input charges.RefundInput) (*charges.RefundOutcome, error) {
	return &charges.RefundOutcome{}, nil
}

func (stubChargeService) ReadCharge(ctx context.Context, orderID uuid.UUID) (*affirm.Charge, error) {
	return &affirm.Charge{ID: "CHG-1"}, nil
}

func (stubChargeService) TransactionURL(ctx context.Context, orderID uuid.UUID) (string, error) {
	return "https://sandbox.affirm.com/dashboard/#/details/CHG-1", nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) BuildSession(ctx context.Context, orderID uuid.UUID) (*checkout.Session, error) {
	return &checkout.Session{PublicKey: "pub"}, nil
}

func (stubCheckoutService) CheckEligibility(ctx context.Context, orderID uuid.UUID) (*checkout.Eligibility, error) {
	return &checkout.Eligibility{Eligible: true}, nil
}

type stubOrdersRepo struct{}

func (stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	order.ID = uuid.New()
	return order, nil
}

func (stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (stubOrdersRepo) ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, registry *prometheus.Registry) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, nil, stubOrdersRepo{}, stubChargeService{}, stubCheckoutService{}, registry)
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.Code)
		}
	}
}

func TestRouterWiresCheckoutRoutes(t *testing.T) {
	router := newTestRouter(t, nil)
	orderID := uuid.New()

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/v1/checkout/" + orderID.String() + "/session", "", http.StatusOK},
		{http.MethodPost, "/api/v1/checkout/" + orderID.String() + "/complete", `{"checkout_token":"tok","order_key":"wc_order_abc"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/orders/" + orderID.String() + "/eligibility", "", http.StatusOK},
		{http.MethodPost, "/api/v1/admin/orders/" + orderID.String() + "/capture", "", http.StatusOK},
		{http.MethodPost, "/api/v1/admin/orders/" + orderID.String() + "/void", `{"cancel_order":false}`, http.StatusOK},
		{http.MethodPost, "/api/v1/admin/orders/" + orderID.String() + "/refund", `{"amount":"10.00"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/admin/orders/" + orderID.String() + "/charge", "", http.StatusOK},
		{http.MethodGet, "/api/v1/orders/" + orderID.String(), "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		req := httptest.NewRequest(tc.method, tc.path, body)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s returned %d, want %d: %s", tc.method, tc.path, resp.Code, tc.want, resp.Body.String())
		}
	}
}

func TestRouterCreateOrder(t *testing.T) {
	router := newTestRouter(t, nil)

	body := `{
		"order_number": 1001,
		"order_key": "wc_order_abc",
		"currency": "USD",
		"subtotal_cents": 8000,
		"total_cents": 8500,
		"country_code": "US",
		"items": [{"name": "widget", "qty": 1, "unit_price_cents": 8000, "total_cents": 8000}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("create order returned %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	router := newTestRouter(t, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", resp.Code)
	}
}
