package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
)

type testOrderRepository struct {
	createFn    func(ctx context.Context, order *models.Order) (*models.Order, error)
	findFn      func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	listNotesFn func(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error)
}

func (r *testOrderRepository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if r.createFn != nil {
		return r.createFn(ctx, order)
	}
	return order, nil
}

func (r *testOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if r.findFn != nil {
		return r.findFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *testOrderRepository) ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error) {
	if r.listNotesFn != nil {
		return r.listNotesFn(ctx, orderID)
	}
	return nil, nil
}

const createOrderBody = `{
	"order_number": 1001,
	"order_key": "wc_order_abc",
	"currency": "usd",
	"subtotal_cents": 8000,
	"shipping_cents": 300,
	"tax_cents": 200,
	"total_cents": 8500,
	"billing_first_name": "Ada",
	"billing_last_name": "Lovelace",
	"billing_email": "ada@example.com",
	"country_code": "us",
	"items": [
		{"sku": "W-1", "name": "widget", "unit_price_cents": 4000, "qty": 2, "total_cents": 8000}
	]
}`

func TestCreateOrderSuccess(t *testing.T) {
	var created *models.Order
	repo := &testOrderRepository{
		createFn: func(ctx context.Context, order *models.Order) (*models.Order, error) {
			order.ID = uuid.New()
			created = order
			return order, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createOrderBody))
	resp := httptest.NewRecorder()
	CreateOrder(repo, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if created == nil {
		t.Fatal("expected repository create call")
	}
	if created.Currency != "USD" || created.CountryCode != "US" {
		t.Fatalf("expected normalized currency and country, got %s %s", created.Currency, created.CountryCode)
	}
	if len(created.Items) != 1 || created.Items[0].Name != "widget" {
		t.Fatalf("unexpected items %+v", created.Items)
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if envelope.Data.OrderKey != "wc_order_abc" {
		t.Fatalf("unexpected order key %q", envelope.Data.OrderKey)
	}
	if envelope.Data.RefundableCents != 8500 {
		t.Fatalf("unexpected refundable cents %d", envelope.Data.RefundableCents)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	called := false
	repo := &testOrderRepository{
		createFn: func(ctx context.Context, order *models.Order) (*models.Order, error) {
			called = true
			return order, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"order_key":"wc_order_abc"}`))
	resp := httptest.NewRecorder()
	CreateOrder(repo, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if called {
		t.Fatal("repository should not be hit for invalid payloads")
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestCreateOrderDuplicateKey(t *testing.T) {
	repo := &testOrderRepository{
		createFn: func(ctx context.Context, order *models.Order) (*models.Order, error) {
			return nil, gorm.ErrDuplicatedKey
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(createOrderBody))
	resp := httptest.NewRecorder()
	CreateOrder(repo, testLogger())(resp, req)

	// gorm's sentinel does not carry postgres text, so this lands on 503.
	if resp.Code == http.StatusCreated {
		t.Fatalf("expected failure status, got %d", resp.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	repo := &testOrderRepository{}

	orderID := uuid.New()
	req := requestWithOrderID(http.MethodGet, "/api/v1/orders/"+orderID.String(), orderID.String(), nil)
	resp := httptest.NewRecorder()
	GetOrder(repo, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestGetOrderIncludesChargeColumns(t *testing.T) {
	orderID := uuid.New()
	chargeID := "CHG-1"
	now := time.Now().UTC()
	repo := &testOrderRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			status := enums.ChargeStatusCaptured
			return &models.Order{
				ID:                 orderID,
				OrderNumber:        1001,
				OrderKey:           "wc_order_abc",
				Currency:           "USD",
				TotalCents:         8500,
				ChargeID:           &chargeID,
				ChargeStatus:       &status,
				FeeCents:           255,
				RefundedTotalCents: 2500,
				PaidAt:             &now,
			}, nil
		},
	}

	req := requestWithOrderID(http.MethodGet, "/api/v1/orders/"+orderID.String(), orderID.String(), nil)
	resp := httptest.NewRecorder()
	GetOrder(repo, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if envelope.Data.ChargeID == nil || *envelope.Data.ChargeID != chargeID {
		t.Fatalf("unexpected charge id %+v", envelope.Data.ChargeID)
	}
	if envelope.Data.RefundableCents != 6000 {
		t.Fatalf("unexpected refundable cents %d", envelope.Data.RefundableCents)
	}
}

func TestListOrderNotes(t *testing.T) {
	orderID := uuid.New()
	repo := &testOrderRepository{
		findFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: orderID}, nil
		},
		listNotesFn: func(ctx context.Context, id uuid.UUID) ([]models.OrderNote, error) {
			return []models.OrderNote{
				{OrderID: orderID, Note: "Affirm charge CHG-1 authorized"},
				{OrderID: orderID, Note: "Affirm charge CHG-1 captured"},
			}, nil
		},
	}

	req := requestWithOrderID(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/notes", orderID.String(), nil)
	resp := httptest.NewRecorder()
	ListOrderNotes(repo, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data []orderNoteResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected two notes, got %d", len(envelope.Data))
	}
}
