package charges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/internal/orders"
	"github.com/angelmondragon/affirm-gateway/pkg/affirm"
	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
	"github.com/angelmondragon/affirm-gateway/pkg/logger"
	"github.com/angelmondragon/affirm-gateway/pkg/metrics"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox/payloads"
)

const chargeLockTTL = 2 * time.Minute

// Refunds against authorized-only orders must cover the full total; the
// comparison tolerates sub-cent float drift from the caller.
var fullRefundTolerance = decimal.NewFromFloat(0.01)

// ServiceParams groups dependencies for the charge lifecycle service.
type ServiceParams struct {
	Repo     orders.Repository
	Gateway  GatewayClient
	Tx       txRunner
	Outbox   outboxPublisher
	Locker   chargeLocker
	Logger   *logger.Logger
	Metrics  *metrics.ChargeMetrics
	AuthOnly bool
}

// Service drives the charge state machine against the provider and keeps
// the local order in step with it.
type Service struct {
	repo     orders.Repository
	gateway  GatewayClient
	tx       txRunner
	outbox   outboxPublisher
	locker   chargeLocker
	logg     *logger.Logger
	metrics  *metrics.ChargeMetrics
	authOnly bool
}

// NewService builds the charge lifecycle service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway client is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher is required")
	}
	if params.Locker == nil {
		return nil, errors.New("charge locker is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		tx:       params.Tx,
		outbox:   params.Outbox,
		locker:   params.Locker,
		logg:     params.Logger,
		metrics:  params.Metrics,
		authOnly: params.AuthOnly,
	}, nil
}

// CompleteCheckoutInput carries the shopper postback parameters.
type CompleteCheckoutInput struct {
	OrderID       uuid.UUID
	OrderKey      string
	CheckoutToken string
}

// CompleteCheckoutResult reports how the postback resolved.
type CompleteCheckoutResult struct {
	ChargeID    string
	Captured    bool
	OrderStatus enums.OrderStatus
}

// CompleteCheckout exchanges the checkout token for a charge, validates it
// against the order, and either captures immediately or holds the
// authorization depending on the transaction mode. Validation failures
// void the dangling authorization before surfacing the error.
func (s *Service) CompleteCheckout(ctx context.Context, input CompleteCheckoutInput) (*CompleteCheckoutResult, error) {
	start := time.Now()
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.findOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.OrderKey == "" || input.OrderKey != order.OrderKey {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order key does not match")
	}

	acquired, err := s.locker.AcquireChargeLock(ctx, order.ID.String(), chargeLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring charge lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a checkout for this order is already in progress")
	}
	defer func() {
		if relErr := s.locker.ReleaseChargeLock(context.WithoutCancel(ctx), order.ID.String()); relErr != nil {
			s.logg.Warn(ctx, "failed to release charge lock")
		}
	}()

	if order.ChargeID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid,
			fmt.Sprintf("order %s already has charge %s", order.ID, *order.ChargeID))
	}

	ref := affirm.OrderRef{
		ID:         order.ID.String(),
		OrderKey:   order.OrderKey,
		CartHash:   order.CartHash,
		TotalCents: order.TotalCents,
	}
	charge, err := s.gateway.ExchangeToken(ctx, input.CheckoutToken, ref)
	if err != nil {
		if charge != nil {
			s.voidDangling(ctx, order, charge.ID, "order mismatch detected during token exchange", false)
		}
		s.observe("exchange", start, false)
		return nil, err
	}
	ctx = s.logg.WithChargeID(ctx, charge.ID)

	chargeTotal, ok := charge.ValidationTotalCents()
	if !ok || chargeTotal != order.TotalCents {
		s.voidDangling(ctx, order, charge.ID,
			fmt.Sprintf("charge total %s does not match order total %s",
				FromCents(chargeTotal), FromCents(order.TotalCents)), true)
		s.observe("exchange", start, false)
		return nil, pkgerrors.New(pkgerrors.CodeAmountMismatch,
			fmt.Sprintf("charge %s total %d differs from order total %d", charge.ID, chargeTotal, order.TotalCents))
	}
	if !order.NeedsPayment() {
		s.voidDangling(ctx, order, charge.ID, "order no longer needs payment", false)
		s.observe("exchange", start, false)
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid,
			fmt.Sprintf("order %s is %s and no longer needs payment", order.ID, order.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.BindCharge(ctx, order.ID, charge.ID, enums.ChargeStatusAuthorized, s.authOnly); err != nil {
			return err
		}
		if s.authOnly {
			if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusOnHold); err != nil {
				return err
			}
		}
		if err := repo.AppendNote(ctx, order.ID,
			fmt.Sprintf("Affirm charge %s authorized for %s %s", charge.ID, FromCents(order.TotalCents), order.Currency)); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChargeAuthorized,
			AggregateType: enums.AggregateCharge,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.ChargeAuthorizedEvent{
				OrderID:        order.ID,
				ChargeID:       charge.ID,
				AmountCents:    order.TotalCents,
				Currency:       order.Currency,
				AuthorizedOnly: s.authOnly,
			},
		})
	})
	if err != nil {
		s.voidDangling(ctx, order, charge.ID, "failed to record authorized charge", false)
		s.observe("exchange", start, false)
		return nil, err
	}
	s.observe("exchange", start, true)

	if s.authOnly {
		return &CompleteCheckoutResult{
			ChargeID:    charge.ID,
			Captured:    false,
			OrderStatus: enums.OrderStatusOnHold,
		}, nil
	}

	if _, err := s.Capture(ctx, order.ID); err != nil {
		return nil, err
	}
	return &CompleteCheckoutResult{
		ChargeID:    charge.ID,
		Captured:    true,
		OrderStatus: enums.OrderStatusProcessing,
	}, nil
}

// Capture settles the authorized charge and marks the order paid.
func (s *Service) Capture(ctx context.Context, orderID uuid.UUID) (*affirm.CaptureResult, error) {
	start := time.Now()
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	chargeID, err := boundChargeID(order)
	if err != nil {
		return nil, err
	}
	if order.ChargeStatus == nil || *order.ChargeStatus != enums.ChargeStatusAuthorized {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("charge %s is not awaiting capture", chargeID))
	}
	ctx = s.logg.WithChargeID(ctx, chargeID)

	result, err := s.gateway.Capture(ctx, chargeID, order.ID.String())
	if err != nil {
		s.observe("capture", start, false)
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkPaid(ctx, order.ID, result.FeeCents); err != nil {
			return err
		}
		if err := repo.AppendNote(ctx, order.ID,
			fmt.Sprintf("Affirm charge %s captured for %s %s (fee %s)",
				chargeID, FromCents(result.AmountCents), order.Currency, FromCents(result.FeeCents))); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChargeCaptured,
			AggregateType: enums.AggregateCharge,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.ChargeCapturedEvent{
				OrderID:       order.ID,
				ChargeID:      chargeID,
				TransactionID: result.TransactionID,
				AmountCents:   result.AmountCents,
				FeeCents:      result.FeeCents,
			},
		})
	})
	if err != nil {
		s.observe("capture", start, false)
		return nil, err
	}
	s.observe("capture", start, true)
	return result, nil
}

// Void cancels the authorization hold; cancelOrder additionally cancels
// the order itself.
func (s *Service) Void(ctx context.Context, orderID uuid.UUID, cancelOrder bool) (*affirm.VoidResult, error) {
	start := time.Now()
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	chargeID, err := boundChargeID(order)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithChargeID(ctx, chargeID)

	result, err := s.gateway.Void(ctx, chargeID)
	if err != nil {
		s.observe("void", start, false)
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.MarkVoided(ctx, order.ID, cancelOrder); err != nil {
			return err
		}
		if err := repo.AppendNote(ctx, order.ID,
			fmt.Sprintf("Affirm charge %s voided", chargeID)); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChargeVoided,
			AggregateType: enums.AggregateCharge,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.ChargeVoidedEvent{
				OrderID:        order.ID,
				ChargeID:       chargeID,
				Reason:         "voided by merchant",
				OrderCancelled: cancelOrder,
			},
		})
	})
	if err != nil {
		s.observe("void", start, false)
		return nil, err
	}
	s.observe("void", start, true)
	return result, nil
}

// RefundInput describes a merchant-initiated refund.
type RefundInput struct {
	OrderID uuid.UUID
	Amount  decimal.Decimal
	Reason  string
}

// RefundOutcome reports whether a refund settled money back or voided the
// uncaptured authorization instead.
type RefundOutcome struct {
	Voided bool
	Refund *affirm.RefundResult
}

// Refund returns money to the shopper. Orders still holding an uncaptured
// authorization only support a full void; captured orders accumulate
// partial refunds up to the order total.
func (s *Service) Refund(ctx context.Context, input RefundInput) (*RefundOutcome, error) {
	start := time.Now()
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	order, err := s.findOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	chargeID, err := boundChargeID(order)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithChargeID(ctx, chargeID)

	if order.AuthorizedOnly {
		total := decimal.NewFromInt(int64(order.TotalCents)).Div(centsFactor)
		if total.Sub(input.Amount).Abs().GreaterThanOrEqual(fullRefundTolerance) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				"this order holds an uncaptured authorization; only a refund of the full order amount (which voids the charge) is supported")
		}
		if _, err := s.Void(ctx, order.ID, false); err != nil {
			return nil, err
		}
		if err := s.repo.AppendNote(ctx, order.ID, "Charge voided in lieu of refund"); err != nil {
			s.logg.Warn(ctx, "failed to append void-in-lieu note")
		}
		return &RefundOutcome{Voided: true}, nil
	}

	amountCents := ToCents(input.Amount)
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amountCents > order.RemainingRefundableCents() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund of %s exceeds the remaining refundable %s",
				FromCents(amountCents), FromCents(order.RemainingRefundableCents())))
	}

	result, err := s.gateway.Refund(ctx, chargeID, amountCents)
	if err != nil {
		s.observe("refund", start, false)
		return nil, err
	}

	// The requested amount drives the local accounting; the provider echo
	// omits the amount on some responses.
	refundedTotal := order.RefundedTotalCents + amountCents
	full := refundedTotal >= order.TotalCents

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.AddRefund(ctx, order.ID, amountCents, full); err != nil {
			return err
		}
		note := fmt.Sprintf("Affirm charge %s refunded %s %s", chargeID, FromCents(amountCents), order.Currency)
		if input.Reason != "" {
			note = fmt.Sprintf("%s: %s", note, input.Reason)
		}
		if err := repo.AppendNote(ctx, order.ID, note); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChargeRefunded,
			AggregateType: enums.AggregateCharge,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.ChargeRefundedEvent{
				OrderID:            order.ID,
				ChargeID:           chargeID,
				AmountCents:        amountCents,
				FeeRefundedCents:   result.FeeRefundedCents,
				RefundedTotalCents: refundedTotal,
				Full:               full,
			},
		})
	})
	if err != nil {
		s.observe("refund", start, false)
		return nil, err
	}
	s.observe("refund", start, true)
	return &RefundOutcome{Refund: result}, nil
}

// ReadCharge returns the provider-side state of the order's charge.
func (s *Service) ReadCharge(ctx context.Context, orderID uuid.UUID) (*affirm.Charge, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	chargeID, err := boundChargeID(order)
	if err != nil {
		return nil, err
	}
	return s.gateway.ReadCharge(ctx, chargeID)
}

// TransactionURL returns the merchant-dashboard link for the order's charge.
func (s *Service) TransactionURL(ctx context.Context, orderID uuid.UUID) (string, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	chargeID, err := boundChargeID(order)
	if err != nil {
		return "", err
	}
	return s.gateway.DashboardChargeURL(chargeID), nil
}

// voidDangling best-effort voids an authorization that failed validation
// before it was usable, then records the failure locally.
func (s *Service) voidDangling(ctx context.Context, order *models.Order, chargeID, reason string, cancelOrder bool) {
	if _, err := s.gateway.Void(ctx, chargeID); err != nil {
		s.logg.Error(ctx, "failed to void dangling authorization", err)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if cancelOrder {
			if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
				return err
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: payloads.OrderCancelledEvent{
					OrderID: order.ID,
					Reason:  reason,
				},
			}); err != nil {
				return err
			}
		}
		return repo.AppendNote(ctx, order.ID,
			fmt.Sprintf("Affirm charge %s voided: %s", chargeID, reason))
	})
	if err != nil {
		s.logg.Error(ctx, "failed to record dangling void", err)
	}
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

func (s *Service) observe(operation string, start time.Time, success bool) {
	s.metrics.ObserveDuration(operation, time.Since(start))
	if success {
		s.metrics.IncSuccess(operation)
		return
	}
	s.metrics.IncFailure(operation)
}

func boundChargeID(order *models.Order) (string, error) {
	if order.ChargeID == nil || *order.ChargeID == "" {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s has no Affirm charge", order.ID))
	}
	return *order.ChargeID, nil
}
