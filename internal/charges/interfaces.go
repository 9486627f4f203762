package charges

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/pkg/affirm"
	"github.com/angelmondragon/affirm-gateway/pkg/outbox"
)

// GatewayClient is the provider surface the charge lifecycle drives.
type GatewayClient interface {
	ExchangeToken(ctx context.Context, checkoutToken string, order affirm.OrderRef) (*affirm.Charge, error)
	ReadCharge(ctx context.Context, chargeID string) (*affirm.Charge, error)
	Capture(ctx context.Context, chargeID, orderID string) (*affirm.CaptureResult, error)
	Void(ctx context.Context, chargeID string) (*affirm.VoidResult, error)
	Refund(ctx context.Context, chargeID string, amountCents int) (*affirm.RefundResult, error)
	DashboardChargeURL(chargeID string) string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type chargeLocker interface {
	AcquireChargeLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	ReleaseChargeLock(ctx context.Context, orderID string) error
}
