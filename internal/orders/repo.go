package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return r.findOne(ctx, "order_number = ?", orderNumber)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where(query, arg).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return &order, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", enums.PaymentStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// AttachSession stores the processor handle while the order is still pending.
func (r *repository) AttachSession(ctx context.Context, id uuid.UUID, sessionID, checkoutURL string) (bool, error) {
	return r.updatePending(ctx, id, map[string]any{
		"checkout_session_id": sessionID,
		"checkout_url":        checkoutURL,
	})
}

// MarkPaid commits pending -> paid and confirms an order that is still processing.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	return r.updatePending(ctx, id, map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        paidAt,
		"order_status": gorm.Expr("CASE WHEN order_status = ? THEN ? ELSE order_status END",
			enums.OrderStatusProcessing, enums.OrderStatusConfirmed),
	})
}

// MarkFailed commits pending -> failed.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, failedAt time.Time, reason string) (bool, error) {
	return r.updatePending(ctx, id, map[string]any{
		"payment_status": enums.PaymentStatusFailed,
		"failed_at":      failedAt,
		"failure_reason": reason,
	})
}

func (r *repository) updatePending(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateFulfillment moves order_status from -> to; a concurrent change makes it a no-op.
func (r *repository) UpdateFulfillment(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, trackingNumber *string) (bool, error) {
	updates := map[string]any{"order_status": to}
	if trackingNumber != nil {
		updates["tracking_number"] = *trackingNumber
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
