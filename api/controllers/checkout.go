package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/affirm-gateway/api/responses"
	"github.com/angelmondragon/affirm-gateway/api/validators"
	"github.com/angelmondragon/affirm-gateway/internal/charges"
	"github.com/angelmondragon/affirm-gateway/internal/checkout"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
)

type sessionService interface {
	BuildSession(ctx context.Context, orderID uuid.UUID) (*checkout.Session, error)
	CheckEligibility(ctx context.Context, orderID uuid.UUID) (*checkout.Eligibility, error)
}

type checkoutCompleter interface {
	CompleteCheckout(ctx context.Context, input charges.CompleteCheckoutInput) (*charges.CompleteCheckoutResult, error)
}

type completeCheckoutRequest struct {
	CheckoutToken string `json:"checkout_token" validate:"required"`
	OrderKey      string `json:"order_key" validate:"required"`
}

type completeCheckoutResponse struct {
	ChargeID    string            `json:"charge_id"`
	Captured    bool              `json:"captured"`
	OrderStatus enums.OrderStatus `json:"order_status"`
}

// CheckoutSession builds the widget payload the storefront renders to open
// the Affirm modal.
func CheckoutSession(svc sessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.BuildSession(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// CheckEligibility reports whether the order qualifies for Affirm financing.
func CheckEligibility(svc sessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eligibility, err := svc.CheckEligibility(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eligibility)
	}
}

// CompleteCheckout handles the storefront postback after the shopper
// confirms the Affirm modal. The checkout token is exchanged for a charge
// and the order advances to paid or on hold.
func CompleteCheckout(svc checkoutCompleter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "charge service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req completeCheckoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CompleteCheckout(r.Context(), charges.CompleteCheckoutInput{
			OrderID:       orderID,
			OrderKey:      strings.TrimSpace(req.OrderKey),
			CheckoutToken: strings.TrimSpace(req.CheckoutToken),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, completeCheckoutResponse{
			ChargeID:    result.ChargeID,
			Captured:    result.Captured,
			OrderStatus: result.OrderStatus,
		})
	}
}
