package orders

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db"
)

const (
	orderNumberConstraint = "orders_order_number_key"
	// sqlite reports the column instead of the constraint name
	orderNumberColumn = "orders.order_number"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{6}$`)

// NumberGenerator produces a candidate order number for the given instant.
type NumberGenerator func(now time.Time) string

// RandomOrderNumber renders ORD-YYYYMMDD-NNNNNN with a random suffix.
// Uniqueness is enforced by the database; collisions are retried by the caller.
func RandomOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.UTC().Format("20060102"), rand.IntN(1_000_000))
}

func isOrderNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, orderNumberColumn)
}

// ValidOrderNumber reports whether s has the order number shape.
func ValidOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}
