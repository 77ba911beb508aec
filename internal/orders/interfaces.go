package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their line items.
// The conditional updates report whether a row actually changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	AttachSession(ctx context.Context, id uuid.UUID, sessionID, checkoutURL string) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, failedAt time.Time, reason string) (bool, error)
	UpdateFulfillment(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, trackingNumber *string) (bool, error)
}
