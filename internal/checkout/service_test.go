package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/internal/orders"
	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
)

type stubRepo struct {
	order *models.Order
}

func (s *stubRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (s *stubRepo) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	return nil
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubRepo) FindByChargeID(ctx context.Context, chargeID string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) BindCharge(ctx context.Context, orderID uuid.UUID, chargeID string, status enums.ChargeStatus, authorizedOnly bool) error {
	return nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return nil
}

func (s *stubRepo) MarkPaid(ctx context.Context, orderID uuid.UUID, feeCents int) error { return nil }

func (s *stubRepo) MarkVoided(ctx context.Context, orderID uuid.UUID, cancelled bool) error {
	return nil
}

func (s *stubRepo) AddRefund(ctx context.Context, orderID uuid.UUID, amountCents int, full bool) error {
	return nil
}

func (s *stubRepo) AppendNote(ctx context.Context, orderID uuid.UUID, note string) error { return nil }

func (s *stubRepo) ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error) {
	return nil, nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:               uuid.New(),
		OrderNumber:      1001,
		OrderKey:         "wc_order_abc",
		Currency:         "USD",
		CountryCode:      "US",
		Status:           enums.OrderStatusPending,
		SubtotalCents:    8000,
		ShippingCents:    300,
		TaxCents:         200,
		TotalCents:       8500,
		BillingFirstName: "Ada",
		BillingLastName:  "Lovelace",
		BillingEmail:     "ada@example.com",
		Items: []models.OrderLineItem{
			{Name: "widget", SKU: "W-1", UnitPriceCents: 4000, Qty: 2, TotalCents: 8000},
		},
	}
}

func newService(t *testing.T, order *models.Order) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Repo: &stubRepo{order: order},
		Affirm: config.AffirmConfig{
			PublicKey:    "pub-key",
			Sandbox:      true,
			OrderMinimum: "50",
			OrderMaximum: "30000",
		},
		Checkout: config.CheckoutConfig{
			ConfirmationURL: "https://shop.example.com/checkout/confirm",
			CancelURL:       "https://shop.example.com/checkout/cancel",
			PlatformName:    "Example Shop",
		},
	})
	require.NoError(t, err)
	return service
}

func TestBuildSession(t *testing.T) {
	order := testOrder()
	service := newService(t, order)

	session, err := service.BuildSession(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, "pub-key", session.PublicKey)
	assert.True(t, session.Sandbox)
	assert.Equal(t, "https://shop.example.com/checkout/confirm", session.Checkout.Merchant.UserConfirmationURL)
	assert.Equal(t, "wc_order_abc", session.Checkout.Metadata.OrderKey)
	assert.Equal(t, "WooCommerce", session.Checkout.Metadata.PlatformType)
	assert.Equal(t, "1001", session.Checkout.OrderID)
	assert.Equal(t, 8500, session.Checkout.Total)
	assert.Equal(t, 300, session.Checkout.ShippingAmount)
	require.Len(t, session.Checkout.Items, 1)
	assert.Equal(t, "widget", session.Checkout.Items[0].DisplayName)
	assert.Equal(t, "Ada", session.Checkout.Billing.Name.First)
}

func TestBuildSessionRejectsPaidOrder(t *testing.T) {
	order := testOrder()
	order.Status = enums.OrderStatusProcessing
	service := newService(t, order)

	_, err := service.BuildSession(context.Background(), order.ID)
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestBuildSessionRejectsIneligibleOrder(t *testing.T) {
	order := testOrder()
	order.Currency = "EUR"
	service := newService(t, order)

	_, err := service.BuildSession(context.Background(), order.ID)
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeValidation, domainErr.Code())
}

func TestCheckEligibility(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*models.Order)
		eligible bool
	}{
		{name: "eligible us usd order", mutate: func(o *models.Order) {}, eligible: true},
		{name: "territory is supported", mutate: func(o *models.Order) { o.CountryCode = "PR" }, eligible: true},
		{name: "non usd currency", mutate: func(o *models.Order) { o.Currency = "CAD" }, eligible: false},
		{name: "unsupported country", mutate: func(o *models.Order) { o.CountryCode = "CA" }, eligible: false},
		{name: "below minimum", mutate: func(o *models.Order) { o.TotalCents = 4999 }, eligible: false},
		{name: "above maximum", mutate: func(o *models.Order) { o.TotalCents = 3000001 }, eligible: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := testOrder()
			tc.mutate(order)
			service := newService(t, order)

			result, err := service.CheckEligibility(context.Background(), order.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.eligible, result.Eligible)
			if !tc.eligible {
				assert.NotEmpty(t, result.Reasons)
			}
		})
	}
}

func TestCheckEligibilityUnknownOrder(t *testing.T) {
	service := newService(t, testOrder())

	_, err := service.CheckEligibility(context.Background(), uuid.New())
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeNotFound, domainErr.Code())
}
