package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/api/responses"
	"github.com/angelmondragon/affirm-gateway/api/validators"
	"github.com/angelmondragon/affirm-gateway/pkg/db"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
)

type orderRepository interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error)
}

type createOrderItemRequest struct {
	SKU            string `json:"sku"`
	Name           string `json:"name" validate:"required"`
	UnitPriceCents int    `json:"unit_price_cents" validate:"min=0"`
	Qty            int    `json:"qty" validate:"required,min=1"`
	TotalCents     int    `json:"total_cents" validate:"min=0"`
	ItemURL        string `json:"item_url"`
	ImageURL       string `json:"image_url"`
}

type createOrderRequest struct {
	OrderNumber      int64                    `json:"order_number" validate:"required,min=1"`
	OrderKey         string                   `json:"order_key" validate:"required"`
	CartHash         string                   `json:"cart_hash"`
	Currency         string                   `json:"currency" validate:"required,len=3"`
	SubtotalCents    int                      `json:"subtotal_cents" validate:"min=0"`
	ShippingCents    int                      `json:"shipping_cents" validate:"min=0"`
	TaxCents         int                      `json:"tax_cents" validate:"min=0"`
	DiscountCents    int                      `json:"discount_cents" validate:"min=0"`
	TotalCents       int                      `json:"total_cents" validate:"required,min=1"`
	BillingFirstName string                   `json:"billing_first_name"`
	BillingLastName  string                   `json:"billing_last_name"`
	BillingEmail     string                   `json:"billing_email" validate:"omitempty,email"`
	BillingPhone     string                   `json:"billing_phone"`
	CountryCode      string                   `json:"country_code" validate:"required,len=2"`
	Items            []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderItemResponse struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	TotalCents     int    `json:"total_cents"`
}

type orderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        int64               `json:"order_number"`
	OrderKey           string              `json:"order_key"`
	Currency           string              `json:"currency"`
	Status             enums.OrderStatus   `json:"status"`
	SubtotalCents      int                 `json:"subtotal_cents"`
	ShippingCents      int                 `json:"shipping_cents"`
	TaxCents           int                 `json:"tax_cents"`
	DiscountCents      int                 `json:"discount_cents"`
	TotalCents         int                 `json:"total_cents"`
	ChargeID           *string             `json:"charge_id,omitempty"`
	ChargeStatus       *enums.ChargeStatus `json:"charge_status,omitempty"`
	AuthorizedOnly     bool                `json:"authorized_only"`
	FeeCents           int                 `json:"fee_cents"`
	RefundedTotalCents int                 `json:"refunded_total_cents"`
	RefundableCents    int                 `json:"refundable_cents"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	Items              []orderItemResponse `json:"items"`
	CreatedAt          time.Time           `json:"created_at"`
}

type orderNoteResponse struct {
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			SKU:            item.SKU,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			TotalCents:     item.TotalCents,
		})
	}
	return orderResponse{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		OrderKey:           order.OrderKey,
		Currency:           order.Currency,
		Status:             order.Status,
		SubtotalCents:      order.SubtotalCents,
		ShippingCents:      order.ShippingCents,
		TaxCents:           order.TaxCents,
		DiscountCents:      order.DiscountCents,
		TotalCents:         order.TotalCents,
		ChargeID:           order.ChargeID,
		ChargeStatus:       order.ChargeStatus,
		AuthorizedOnly:     order.AuthorizedOnly,
		FeeCents:           order.FeeCents,
		RefundedTotalCents: order.RefundedTotalCents,
		RefundableCents:    order.RemainingRefundableCents(),
		PaidAt:             order.PaidAt,
		Items:              items,
		CreatedAt:          order.CreatedAt,
	}
}

// CreateOrder registers a host-platform order so a checkout session can be
// opened against it.
func CreateOrder(repo orderRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]models.OrderLineItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, models.OrderLineItem{
				SKU:            validators.SanitizeString(item.SKU, 64),
				Name:           validators.SanitizeString(item.Name, 255),
				UnitPriceCents: item.UnitPriceCents,
				Qty:            item.Qty,
				TotalCents:     item.TotalCents,
				ItemURL:        item.ItemURL,
				ImageURL:       item.ImageURL,
			})
		}

		order := &models.Order{
			OrderNumber:      req.OrderNumber,
			OrderKey:         strings.TrimSpace(req.OrderKey),
			CartHash:         strings.TrimSpace(req.CartHash),
			Currency:         strings.ToUpper(req.Currency),
			Status:           enums.OrderStatusPending,
			SubtotalCents:    req.SubtotalCents,
			ShippingCents:    req.ShippingCents,
			TaxCents:         req.TaxCents,
			DiscountCents:    req.DiscountCents,
			TotalCents:       req.TotalCents,
			BillingFirstName: validators.SanitizeString(req.BillingFirstName, 100),
			BillingLastName:  validators.SanitizeString(req.BillingLastName, 100),
			BillingEmail:     strings.TrimSpace(req.BillingEmail),
			BillingPhone:     validators.SanitizeString(req.BillingPhone, 32),
			CountryCode:      strings.ToUpper(req.CountryCode),
			Items:            items,
		}

		created, err := repo.Create(r.Context(), order)
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an order with this order key already exists"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(created))
	}
}

// GetOrder returns the order along with its charge lifecycle columns.
func GetOrder(repo orderRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := repo.FindByID(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch order"))
			return
		}

		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// ListOrderNotes returns the audit trail recorded against an order.
func ListOrderNotes(repo orderRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := repo.FindByID(r.Context(), orderID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch order"))
			return
		}

		notes, err := repo.ListNotes(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order notes"))
			return
		}
		if len(notes) > limit {
			notes = notes[:limit]
		}

		payload := make([]orderNoteResponse, 0, len(notes))
		for _, note := range notes {
			payload = append(payload, orderNoteResponse{Note: note.Note, CreatedAt: note.CreatedAt})
		}
		responses.WriteSuccess(w, payload)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
