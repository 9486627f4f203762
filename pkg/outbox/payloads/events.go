package payloads

import (
	"github.com/google/uuid"
)

// ChargeAuthorizedEvent is emitted when a checkout token exchange opens an
// authorization hold.
type ChargeAuthorizedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	ChargeID       string    `json:"charge_id"`
	AmountCents    int       `json:"amount_cents"`
	Currency       string    `json:"currency"`
	AuthorizedOnly bool      `json:"authorized_only"`
}

// ChargeCapturedEvent is emitted when an authorized charge settles.
type ChargeCapturedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	ChargeID      string    `json:"charge_id"`
	TransactionID string    `json:"transaction_id"`
	AmountCents   int       `json:"amount_cents"`
	FeeCents      int       `json:"fee_cents"`
}

// ChargeVoidedEvent is emitted when an authorization hold is cancelled.
type ChargeVoidedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	ChargeID       string    `json:"charge_id"`
	Reason         string    `json:"reason"`
	OrderCancelled bool      `json:"order_cancelled"`
}

// ChargeRefundedEvent is emitted for each refund issued against a charge.
type ChargeRefundedEvent struct {
	OrderID            uuid.UUID `json:"order_id"`
	ChargeID           string    `json:"charge_id"`
	AmountCents        int       `json:"amount_cents"`
	FeeRefundedCents   int       `json:"fee_refunded_cents"`
	RefundedTotalCents int       `json:"refunded_total_cents"`
	Full               bool      `json:"full"`
}

// OrderCancelledEvent is emitted when a failed validation cancels the order.
type OrderCancelledEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}
