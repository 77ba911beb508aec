package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderLineItem is a frozen snapshot of one purchased bucket.
type OrderLineItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Position          int                     `gorm:"column:position;not null"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	Size              string                  `gorm:"column:size;not null"`
	Color             string                  `gorm:"column:color;not null;default:''"`
	UnitPrice         int64                   `gorm:"column:unit_price;not null"`
	Quantity          int                     `gorm:"column:quantity;not null"`
	LineTotal         int64                   `gorm:"column:line_total;not null"`
	DisplayName       string                  `gorm:"column:display_name;not null"`
	DisplayImage      string                  `gorm:"column:display_image;not null;default:''"`
	ReservationStatus enums.ReservationStatus `gorm:"column:reservation_status;type:text;not null;default:'reserved'"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *OrderLineItem) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
