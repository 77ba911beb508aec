package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
)

// Product is the catalog listing; this service only reads it.
type Product struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name      string             `gorm:"column:name;not null"`
	Price     int64              `gorm:"column:price;not null"`
	SalePrice *int64             `gorm:"column:sale_price"`
	IsActive  bool               `gorm:"column:is_active;not null;default:true"`
	Images    dbtypes.StringList `gorm:"column:images;type:jsonb;not null"`
	Stocks    []ProductStock     `gorm:"foreignKey:ProductID;references:ID"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectivePrice is the sale price when it undercuts the list price.
func (p Product) EffectivePrice() int64 {
	if p.SalePrice != nil && *p.SalePrice < p.Price {
		return *p.SalePrice
	}
	return p.Price
}

// HasColorVariants reports whether any stock bucket is addressed by color.
func (p Product) HasColorVariants() bool {
	for _, s := range p.Stocks {
		if s.Color != "" {
			return true
		}
	}
	return false
}
