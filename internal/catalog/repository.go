// Package catalog reads live product listings. The storefront never writes them.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Reader is what order intake needs from the catalog.
type Reader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the product with its stock buckets.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Stocks", func(db *gorm.DB) *gorm.DB {
			return db.Order("size ASC, color ASC")
		}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return &product, nil
}

// ResolveBucket picks the stock row a cart line addresses. Products with color
// variants require a color; flat-size products ignore it.
func ResolveBucket(product *models.Product, size, color string) (models.ProductStock, error) {
	if product.HasColorVariants() {
		if color == "" {
			return models.ProductStock{}, pkgerrors.New(pkgerrors.CodeValidation, "color is required for "+product.Name)
		}
	} else {
		color = ""
	}
	for _, stock := range product.Stocks {
		if stock.Size == size && stock.Color == color {
			return stock, nil
		}
	}
	return models.ProductStock{}, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found for "+product.Name).WithDetails(map[string]any{
		"product_id": product.ID.String(),
		"size":       size,
		"color":      color,
	})
}
