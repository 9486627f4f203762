package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/affirm-gateway/pkg/enums"
)

// Order is the host-platform order the gateway collects payment for.
// Charge columns are written exactly once when a checkout token is
// exchanged and thereafter only advance through the charge lifecycle.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber int64             `gorm:"column:order_number;not null"`
	OrderKey    string            `gorm:"column:order_key;not null;uniqueIndex"`
	CartHash    string            `gorm:"column:cart_hash;not null;default:''"`
	Currency    string            `gorm:"column:currency;not null;default:'USD'"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`

	SubtotalCents int `gorm:"column:subtotal_cents;not null"`
	ShippingCents int `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents      int `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents int `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int `gorm:"column:total_cents;not null"`

	BillingFirstName string `gorm:"column:billing_first_name;not null;default:''"`
	BillingLastName  string `gorm:"column:billing_last_name;not null;default:''"`
	BillingEmail     string `gorm:"column:billing_email;not null;default:''"`
	BillingPhone     string `gorm:"column:billing_phone;not null;default:''"`
	CountryCode      string `gorm:"column:country_code;not null;default:'US'"`

	ChargeID           *string             `gorm:"column:charge_id;uniqueIndex"`
	ChargeStatus       *enums.ChargeStatus `gorm:"column:charge_status;type:charge_status"`
	AuthorizedOnly     bool                `gorm:"column:authorized_only;not null;default:false"`
	FeeCents           int                 `gorm:"column:fee_cents;not null;default:0"`
	RefundedTotalCents int                 `gorm:"column:refunded_total_cents;not null;default:0"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Notes []OrderNote     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// NeedsPayment reports whether the order still expects a successful payment.
func (o Order) NeedsPayment() bool {
	return o.Status.NeedsPayment()
}

// RemainingRefundableCents is the amount still available for refund.
func (o Order) RemainingRefundableCents() int {
	remaining := o.TotalCents - o.RefundedTotalCents
	if remaining < 0 {
		return 0
	}
	return remaining
}
