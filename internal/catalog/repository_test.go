package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestFindByIDLoadsStocks(t *testing.T) {
	conn := dbtest.Open(t)
	sale := int64(800)
	seeded := dbtest.SeedProduct(t, conn,
		models.Product{Name: "Hoodie", Price: 1000, SalePrice: &sale, IsActive: true, Images: dbtypes.StringList{"https://cdn.example.com/h.png"}},
		models.ProductStock{Size: "M", Color: "Grey", Stock: 2},
		models.ProductStock{Size: "L", Color: "Grey", Stock: 0},
	)

	product, err := NewRepository(conn).FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hoodie", product.Name)
	assert.Len(t, product.Stocks, 2)
	assert.True(t, product.HasColorVariants())
	assert.Equal(t, int64(800), product.EffectivePrice())
	assert.Equal(t, "https://cdn.example.com/h.png", product.Images.First())
}

func TestFindByIDMissing(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewRepository(conn).FindByID(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveBucket(t *testing.T) {
	flat := &models.Product{Name: "Tee", Stocks: []models.ProductStock{{Size: "M", Stock: 1}}}
	stock, err := ResolveBucket(flat, "M", "Blue")
	require.NoError(t, err)
	assert.Equal(t, "", stock.Color)

	_, err = ResolveBucket(flat, "XL", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	colored := &models.Product{Name: "Cap", Stocks: []models.ProductStock{{Size: "F", Color: "Navy", Stock: 1}}}
	_, err = ResolveBucket(colored, "F", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	stock, err = ResolveBucket(colored, "F", "Navy")
	require.NoError(t, err)
	assert.Equal(t, "Navy", stock.Color)

	_, err = ResolveBucket(colored, "F", "Red")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
