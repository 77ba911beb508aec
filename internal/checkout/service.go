package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type orderCreator interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error)
}

type sessionOpener interface {
	Open(ctx context.Context, order *models.Order) (Placement, error)
}

// Service places an order: reserve and persist it, then open its payment session.
type Service interface {
	PlaceOrder(ctx context.Context, input orders.CreateOrderInput) (Placement, error)
}

type service struct {
	intake orderCreator
	broker sessionOpener
}

func NewService(intake orderCreator, broker sessionOpener) (Service, error) {
	if intake == nil {
		return nil, fmt.Errorf("order intake required")
	}
	if broker == nil {
		return nil, fmt.Errorf("session broker required")
	}
	return &service{intake: intake, broker: broker}, nil
}

// PlaceOrder returns no placement when intake rejects the cart. When the session
// cannot be opened the placement still carries the order number alongside the error.
func (s *service) PlaceOrder(ctx context.Context, input orders.CreateOrderInput) (Placement, error) {
	order, err := s.intake.CreateOrder(ctx, input)
	if err != nil {
		return Placement{}, err
	}
	return s.broker.Open(ctx, order)
}
