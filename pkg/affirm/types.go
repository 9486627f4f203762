package affirm

import (
	"strings"

	"github.com/angelmondragon/affirm-gateway/pkg/enums"
)

// Charge is the provider-side record created by exchanging a checkout token.
type Charge struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	AmountCents int            `json:"amount"`
	Currency    string         `json:"currency"`
	AuthHold    int            `json:"auth_hold"`
	OrderID     string         `json:"order_id"`
	Details     *ChargeDetails `json:"details"`
}

// ChargeDetails carries the checkout snapshot echoed back by the provider.
type ChargeDetails struct {
	OrderID  string          `json:"order_id"`
	Metadata *ChargeMetadata `json:"metadata"`
	Items    map[string]any  `json:"items"`
	Shipping map[string]any  `json:"shipping"`
	Total    int             `json:"total"`
}

// ChargeMetadata is the merchant-supplied metadata attached at checkout time.
type ChargeMetadata struct {
	OrderKey     string `json:"order_key"`
	PlatformType string `json:"platform_type"`
}

// ChargeStatus parses the raw provider status, returning false when the
// value is unknown.
func (c *Charge) ChargeStatus() (enums.ChargeStatus, bool) {
	if c == nil {
		return "", false
	}
	status, err := enums.ParseChargeStatus(strings.ToLower(strings.TrimSpace(c.Status)))
	if err != nil {
		return "", false
	}
	return status, true
}

// IsAuthorized reports whether the charge is still holding an open
// authorization.
func (c *Charge) IsAuthorized() bool {
	status, ok := c.ChargeStatus()
	return ok && status == enums.ChargeStatusAuthorized
}

// MatchesOrder reports whether the charge metadata ties back to the local
// order. Missing details or metadata fail closed.
func (c *Charge) MatchesOrder(order OrderRef) bool {
	if c == nil || c.Details == nil || c.Details.Metadata == nil {
		return false
	}
	key := c.Details.Metadata.OrderKey
	if key == "" {
		return false
	}
	return key == order.OrderKey || (order.CartHash != "" && key == order.CartHash)
}

// ValidationTotalCents returns the checkout-snapshot total that amount
// validation compares against the local order. The top-level amount is
// informational only; a missing snapshot fails closed.
func (c *Charge) ValidationTotalCents() (int, bool) {
	if c == nil || c.Details == nil {
		return 0, false
	}
	return c.Details.Total, true
}

// OrderRef is the minimal local-order snapshot the client validates
// exchanged charges against.
type OrderRef struct {
	ID         string
	OrderKey   string
	CartHash   string
	TotalCents int
}

// CaptureResult is the provider response to a capture event.
type CaptureResult struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int    `json:"amount"`
	FeeCents      int    `json:"fee"`
	Currency      string `json:"currency"`
	Type          string `json:"type"`
	Created       string `json:"created"`
}

// RefundResult is the provider response to a refund event.
type RefundResult struct {
	ID               string `json:"id"`
	TransactionID    string `json:"transaction_id"`
	AmountCents      int    `json:"amount"`
	FeeRefundedCents int    `json:"fee_refunded"`
	Type             string `json:"type"`
	Created          string `json:"created"`
}

// VoidResult is the provider response to a void event.
type VoidResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created string `json:"created"`
}

type exchangeRequest struct {
	CheckoutToken string `json:"checkout_token"`
}

type captureRequest struct {
	OrderID string `json:"order_id"`
}

type refundRequest struct {
	Amount int `json:"amount"`
}
