package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affirm-gateway/pkg/db/models"
	"github.com/angelmondragon/affirm-gateway/pkg/enums"
	pkgerrors "github.com/angelmondragon/affirm-gateway/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByChargeID(ctx context.Context, chargeID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("charge_id = ?", chargeID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// BindCharge writes the charge columns exactly once. A second bind attempt
// for the same order reports a conflict instead of overwriting.
func (r *repository) BindCharge(ctx context.Context, orderID uuid.UUID, chargeID string, status enums.ChargeStatus, authorizedOnly bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND charge_id IS NULL", orderID).
		Updates(map[string]any{
			"charge_id":       chargeID,
			"charge_status":   status,
			"authorized_only": authorizedOnly,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order already has a charge bound")
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

// MarkPaid records a settled capture and clears the authorization hold flag.
func (r *repository) MarkPaid(ctx context.Context, orderID uuid.UUID, feeCents int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":          enums.OrderStatusProcessing,
			"charge_status":   enums.ChargeStatusCaptured,
			"authorized_only": false,
			"fee_cents":       feeCents,
			"paid_at":         &now,
		}).Error
}

// MarkVoided closes out the charge; cancelled additionally cancels the order.
func (r *repository) MarkVoided(ctx context.Context, orderID uuid.UUID, cancelled bool) error {
	updates := map[string]any{
		"charge_status":   enums.ChargeStatusVoided,
		"authorized_only": false,
	}
	if cancelled {
		updates["status"] = enums.OrderStatusCancelled
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// AddRefund accumulates the refunded total; full refunds also move the
// order and charge to their refunded statuses.
func (r *repository) AddRefund(ctx context.Context, orderID uuid.UUID, amountCents int, full bool) error {
	updates := map[string]any{
		"refunded_total_cents": gorm.Expr("refunded_total_cents + ?", amountCents),
	}
	if full {
		updates["status"] = enums.OrderStatusRefunded
		updates["charge_status"] = enums.ChargeStatusRefunded
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) AppendNote(ctx context.Context, orderID uuid.UUID, note string) error {
	return r.db.WithContext(ctx).Create(&models.OrderNote{
		ID:      uuid.New(),
		OrderID: orderID,
		Note:    note,
	}).Error
}

func (r *repository) ListNotes(ctx context.Context, orderID uuid.UUID) ([]models.OrderNote, error) {
	var notes []models.OrderNote
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}
