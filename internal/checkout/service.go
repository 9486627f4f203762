package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/internal/orders"
	"github.com/angelmondragon/affirm-gateway/pkg/config"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
)

const platformType = "WooCommerce"

// Affirm financing is only offered for USD carts shipping to the US and
// its territories.
var supportedCountries = map[string]struct{}{
	"US": {}, "PR": {}, "VI": {}, "GU": {}, "AS": {}, "MP": {},
}

// Merchant carries the storefront return URLs embedded in the session.
type Merchant struct {
	UserConfirmationURL string `json:"user_confirmation_url"`
	UserCancelURL       string `json:"user_cancel_url"`
	Name                string `json:"name,omitempty"`
}

// Contact is the shopper identity attached to the session.
type Contact struct {
	Name  ContactName `json:"name"`
	Email string      `json:"email,omitempty"`
	Phone string      `json:"phone_number,omitempty"`
}

// ContactName splits the shopper name the way the widget expects.
type ContactName struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// Item is one cart line in the session payload.
type Item struct {
	DisplayName    string `json:"display_name"`
	SKU            string `json:"sku"`
	UnitPriceCents int    `json:"unit_price"`
	Qty            int    `json:"qty"`
	ItemURL        string `json:"item_url,omitempty"`
	ItemImageURL   string `json:"item_image_url,omitempty"`
}

// Metadata ties the provider charge back to the local order.
type Metadata struct {
	OrderKey     string `json:"order_key"`
	PlatformType string `json:"platform_type"`
}

// Object is the checkout payload handed to the Affirm widget.
type Object struct {
	Merchant       Merchant `json:"merchant"`
	Billing        Contact  `json:"billing"`
	Items          []Item   `json:"items"`
	Metadata       Metadata `json:"metadata"`
	OrderID        string   `json:"order_id"`
	Currency       string   `json:"currency"`
	ShippingAmount int      `json:"shipping_amount"`
	TaxAmount      int      `json:"tax_amount"`
	DiscountAmount int      `json:"discount_amount,omitempty"`
	Total          int      `json:"total"`
}

// Session pairs the checkout object with the key the widget needs.
type Session struct {
	PublicKey string `json:"public_api_key"`
	Sandbox   bool   `json:"sandbox"`
	Checkout  Object `json:"checkout"`
}

// Eligibility reports whether an order can be offered Affirm financing.
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"`
}

// ServiceParams groups dependencies for the checkout session service.
type ServiceParams struct {
	Repo     orders.Repository
	Affirm   config.AffirmConfig
	Checkout config.CheckoutConfig
}

// Service builds provider checkout sessions from local orders.
type Service struct {
	repo     orders.Repository
	affirm   config.AffirmConfig
	checkout config.CheckoutConfig
	minTotal decimal.Decimal
	maxTotal decimal.Decimal
}

// NewService builds a checkout session service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Checkout.ConfirmationURL == "" || params.Checkout.CancelURL == "" {
		return nil, errors.New("confirmation and cancel urls are required")
	}
	minTotal, err := decimal.NewFromString(params.Affirm.OrderMinimum)
	if err != nil {
		return nil, fmt.Errorf("parsing order minimum: %w", err)
	}
	maxTotal, err := decimal.NewFromString(params.Affirm.OrderMaximum)
	if err != nil {
		return nil, fmt.Errorf("parsing order maximum: %w", err)
	}
	return &Service{
		repo:     params.Repo,
		affirm:   params.Affirm,
		checkout: params.Checkout,
		minTotal: minTotal,
		maxTotal: maxTotal,
	}, nil
}

// BuildSession assembles the widget payload for a payable order.
func (s *Service) BuildSession(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.NeedsPayment() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s is %s and cannot start a checkout", order.ID, order.Status))
	}
	if eligibility := s.evaluate(order); !eligibility.Eligible {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			"order is not eligible for Affirm financing: "+strings.Join(eligibility.Reasons, "; ")).
			WithDetails(eligibility.Reasons)
	}

	items := make([]Item, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, Item{
			DisplayName:    line.Name,
			SKU:            line.SKU,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
			ItemURL:        line.ItemURL,
			ItemImageURL:   line.ImageURL,
		})
	}

	return &Session{
		PublicKey: s.affirm.PublicKey,
		Sandbox:   s.affirm.Sandbox,
		Checkout: Object{
			Merchant: Merchant{
				UserConfirmationURL: s.checkout.ConfirmationURL,
				UserCancelURL:       s.checkout.CancelURL,
				Name:                s.checkout.PlatformName,
			},
			Billing: Contact{
				Name: ContactName{
					First: order.BillingFirstName,
					Last:  order.BillingLastName,
				},
				Email: order.BillingEmail,
				Phone: order.BillingPhone,
			},
			Items:          items,
			Metadata:       Metadata{OrderKey: order.OrderKey, PlatformType: platformType},
			OrderID:        fmt.Sprintf("%d", order.OrderNumber),
			Currency:       order.Currency,
			ShippingAmount: order.ShippingCents,
			TaxAmount:      order.TaxCents,
			DiscountAmount: order.DiscountCents,
			Total:          order.TotalCents,
		},
	}, nil
}

// CheckEligibility reports whether the order qualifies for financing.
func (s *Service) CheckEligibility(ctx context.Context, orderID uuid.UUID) (*Eligibility, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result := s.evaluate(order)
	return &result, nil
}

func (s *Service) evaluate(order *models.Order) Eligibility {
	var reasons []string

	if !strings.EqualFold(order.Currency, "USD") {
		reasons = append(reasons, fmt.Sprintf("currency %s is not supported, only USD", order.Currency))
	}
	if _, ok := supportedCountries[strings.ToUpper(order.CountryCode)]; !ok {
		reasons = append(reasons, fmt.Sprintf("country %s is not supported", order.CountryCode))
	}

	total := decimal.NewFromInt(int64(order.TotalCents)).Div(decimal.NewFromInt(100))
	if total.LessThan(s.minTotal) {
		reasons = append(reasons, fmt.Sprintf("order total %s is below the %s minimum", total.StringFixed(2), s.minTotal.StringFixed(2)))
	}
	if total.GreaterThan(s.maxTotal) {
		reasons = append(reasons, fmt.Sprintf("order total %s exceeds the %s maximum", total.StringFixed(2), s.maxTotal.StringFixed(2)))
	}

	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}

func (s *Service) findOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return nil, err
	}
	return order, nil
}
