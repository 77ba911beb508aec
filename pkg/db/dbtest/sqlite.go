// Package dbtest opens throwaway sqlite databases with the storefront schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Open returns a private in-memory database migrated with every model.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:storefront_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.ProductStock{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// a single connection keeps the shared-cache database consistent under tx
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in the production db.Client.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}

// SeedProduct inserts a product with the given stock buckets.
func SeedProduct(t testing.TB, conn *gorm.DB, product models.Product, stocks ...models.ProductStock) models.Product {
	t.Helper()
	if err := conn.Omit("Stocks").Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	for i := range stocks {
		stocks[i].ProductID = product.ID
		if err := conn.Create(&stocks[i]).Error; err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
	product.Stocks = stocks
	return product
}

// StockOf reads the current count of one bucket.
func StockOf(t testing.TB, conn *gorm.DB, productID uuid.UUID, size, color string) int {
	t.Helper()
	var row models.ProductStock
	if err := conn.Where("product_id = ? AND size = ? AND color = ?", productID, size, color).First(&row).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return row.Stock
}
