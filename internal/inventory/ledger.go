// Package inventory owns the per-bucket stock counts behind every order.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Bucket addresses one stock row. Color is empty for flat-size products.
type Bucket struct {
	ProductID uuid.UUID
	Size      string
	Color     string
}

// LineReservation is one cart line to reserve, with the name used in errors.
type LineReservation struct {
	Bucket
	Quantity    int
	ProductName string
}

// Ledger mutates stock only through conditional, single-statement updates.
// Every method runs on the caller's transaction.
type Ledger struct {
	logg *logger.Logger
}

func NewLedger(logg *logger.Logger) *Ledger {
	return &Ledger{logg: logg}
}

// Reserve decrements the bucket by qty only if enough stock remains.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, bucket Bucket, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := tx.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ? AND size = ? AND color = ? AND stock >= ?", bucket.ProductID, bucket.Size, bucket.Color, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").WithDetails(map[string]any{
			"product_id": bucket.ProductID.String(),
			"size":       bucket.Size,
			"color":      bucket.Color,
		})
	}
	return nil
}

// Release returns qty units to the bucket.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, bucket Bucket, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := tx.WithContext(ctx).
		Model(&models.ProductStock{}).
		Where("product_id = ? AND size = ? AND color = ?", bucket.ProductID, bucket.Size, bucket.Color).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("stock bucket %s/%s/%q missing", bucket.ProductID, bucket.Size, bucket.Color))
	}
	return nil
}

// ReserveAll reserves every line or none. On the first failure the lines
// already reserved by this call are released and the error names the failing line.
func (l *Ledger) ReserveAll(ctx context.Context, tx *gorm.DB, lines []LineReservation) error {
	reserved := make([]LineReservation, 0, len(lines))
	for i, line := range lines {
		if err := l.Reserve(ctx, tx, line.Bucket, line.Quantity); err != nil {
			if cerr := l.compensate(ctx, tx, reserved); cerr != nil {
				return cerr
			}
			return lineError(err, i, line)
		}
		reserved = append(reserved, line)
	}
	return nil
}

func (l *Ledger) compensate(ctx context.Context, tx *gorm.DB, reserved []LineReservation) error {
	for i := len(reserved) - 1; i >= 0; i-- {
		if err := l.Release(ctx, tx, reserved[i].Bucket, reserved[i].Quantity); err != nil {
			if l.logg != nil {
				l.logg.Error(ctx, "compensating release failed", err)
			}
			return err
		}
	}
	return nil
}

func lineError(err error, index int, line LineReservation) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	msg := typed.Message()
	if line.ProductName != "" {
		msg = fmt.Sprintf("%s: %s", line.ProductName, msg)
	}
	return pkgerrors.Wrap(typed.Code(), err, msg).WithDetails(map[string]any{
		"line":       index + 1,
		"product_id": line.ProductID.String(),
		"product":    line.ProductName,
		"size":       line.Size,
		"color":      line.Color,
	})
}

// ReleaseLines returns the stock held by every still-reserved line of the order.
// Each line is flipped reserved -> released first and its bucket is incremented only
// when that flip took effect, so repeated calls release nothing twice.
func (l *Ledger) ReleaseLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error) {
	var lines []models.OrderLineItem
	if err := tx.WithContext(ctx).
		Where("order_id = ? AND reservation_status = ?", orderID, enums.ReservationReserved).
		Order("position ASC").
		Find(&lines).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reserved lines")
	}

	released := 0
	for _, line := range lines {
		res := tx.WithContext(ctx).
			Model(&models.OrderLineItem{}).
			Where("id = ? AND reservation_status = ?", line.ID, enums.ReservationReserved).
			Update("reservation_status", enums.ReservationReleased)
		if res.Error != nil {
			return released, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "flip reservation status")
		}
		if res.RowsAffected == 0 {
			continue
		}
		bucket := Bucket{ProductID: line.ProductID, Size: line.Size, Color: line.Color}
		if err := l.Release(ctx, tx, bucket, line.Quantity); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}
