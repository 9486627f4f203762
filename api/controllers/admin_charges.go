package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/affirm-gateway/api/responses"
	"github.com/angelmondragon/affirm-gateway/api/validators"
	"github.com/angelmondragon/affirm-gateway/internal/charges"
	"github.com/angelmondragon/affirm-gateway/pkg/affirm"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
)

type chargeService interface {
	Capture(ctx context.Context, orderID uuid.UUID) (*affirm.CaptureResult, error)
	Void(ctx context.Context, orderID uuid.UUID, cancelOrder bool) (*affirm.VoidResult, error)
	Refund(ctx context.Context, input charges.RefundInput) (*charges.RefundOutcome, error)
	ReadCharge(ctx context.Context, orderID uuid.UUID) (*affirm.Charge, error)
	TransactionURL(ctx context.Context, orderID uuid.UUID) (string, error)
}

type voidChargeRequest struct {
	CancelOrder bool `json:"cancel_order"`
}

type refundChargeRequest struct {
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason"`
}

type refundChargeResponse struct {
	Voided bool                 `json:"voided"`
	Refund *affirm.RefundResult `json:"refund,omitempty"`
}

type chargeReadResponse struct {
	Charge       *affirm.Charge `json:"charge"`
	DashboardURL string         `json:"dashboard_url"`
}

// AdminCaptureCharge settles an authorized charge for the full order amount.
func AdminCaptureCharge(svc chargeService, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.Capture(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminVoidCharge releases an open authorization, optionally cancelling the
// order alongside it.
func AdminVoidCharge(svc chargeService, logg *logger.Logger) http.HandlerFunc {
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

		var req voidChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Void(r.Context(), orderID, req.CancelOrder)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminRefundCharge returns money to the shopper. Uncaptured authorizations
// are voided instead when the full amount is requested.
func AdminRefundCharge(svc chargeService, logg *logger.Logger) http.HandlerFunc {
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

		var req refundChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount must be a decimal string"))
			return
		}

		outcome, err := svc.Refund(r.Context(), charges.RefundInput{
			OrderID: orderID,
			Amount:  amount,
			Reason:  validators.SanitizeString(req.Reason, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refundChargeResponse{Voided: outcome.Voided, Refund: outcome.Refund})
	}
}

// AdminReadCharge returns the provider-side view of the order's charge plus
// a link to it in the Affirm dashboard.
func AdminReadCharge(svc chargeService, logg *logger.Logger) http.HandlerFunc {
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

		charge, err := svc.ReadCharge(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dashboardURL, err := svc.TransactionURL(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, chargeReadResponse{Charge: charge, DashboardURL: dashboardURL})
	}
}
