package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
)

// Repository defines persistence operations for orders and their charge
// lifecycle columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByChargeID(ctx context.Context, chargeID string) (*models.Order, error)
	BindCharge(ctx context.Context, orderID uuid.UUID, chargeID string, status enums.ChargeStatus, authorizedOnly bool) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, feeCents int) error
	MarkVoided(ctx context.Context, orderID uuid.UUID, cancelled bool) error
	AddRefund(ctx context.Context, orderID uuid.UUID, amountCents int, full bool) error
	AppendNote(ctx context.Context, orderID uuid.UUID, note string) error
	ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error)
}
