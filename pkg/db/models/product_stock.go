package models

import "github.com/google/uuid"

// ProductStock is one inventory bucket. Color is empty for flat-size products.
type ProductStock struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Size      string    `gorm:"column:size;primaryKey"`
	Color     string    `gorm:"column:color;primaryKey;default:''"`
	Stock     int       `gorm:"column:stock;not null;check:stock >= 0"`
}

func (ProductStock) TableName() string {
	return "product_stocks"
}
