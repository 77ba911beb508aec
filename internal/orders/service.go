package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const maxOrderNumberAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockReserver is the slice of the inventory ledger intake needs.
type StockReserver interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, lines []inventory.LineReservation) error
}

// CatalogFactory binds a catalog reader to the intake transaction.
type CatalogFactory func(tx *gorm.DB) catalog.Reader

func defaultCatalog(tx *gorm.DB) catalog.Reader {
	return catalog.NewRepository(tx)
}

// Service defines order intake, lookup, and fulfillment updates.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
}

type ServiceParams struct {
	Repo      Repository
	TX        txRunner
	Outbox    outboxPublisher
	Inventory StockReserver
	Catalog   CatalogFactory
	Checkout  config.CheckoutConfig
	Logger    *logger.Logger
	Numbers   NumberGenerator
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory StockReserver
	catalog   CatalogFactory
	checkout  config.CheckoutConfig
	processor enums.Processor
	logg      *logger.Logger
	numbers   NumberGenerator
	now       func() time.Time
	validate  *validator.Validate
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	processor, err := enums.ParseProcessor(params.Checkout.ProcessorName())
	if err != nil {
		return nil, err
	}
	s := &service{
		repo:      params.Repo,
		tx:        params.TX,
		outbox:    params.Outbox,
		inventory: params.Inventory,
		catalog:   params.Catalog,
		checkout:  params.Checkout,
		processor: processor,
		logg:      params.Logger,
		numbers:   params.Numbers,
		now:       params.Now,
		validate:  validator.New(),
	}
	if s.catalog == nil {
		s.catalog = defaultCatalog
	}
	if s.numbers == nil {
		s.numbers = RandomOrderNumber
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// CreateOrder reserves every cart line and persists a pending order in one transaction.
// Nothing is persisted and no stock is held when any line fails.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		order, err := s.createOnce(ctx, input)
		if err == nil {
			return order, nil
		}
		if attempt < maxOrderNumberAttempts && isOrderNumberCollision(err) {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order number collision, retrying")
			continue
		}
		return nil, err
	}
}

func (s *service) createOnce(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reader := s.catalog(tx)

		reservations := make([]inventory.LineReservation, 0, len(input.Items))
		lines := make([]models.OrderLineItem, 0, len(input.Items))
		var subtotal int64

		for i, item := range input.Items {
			product, err := reader.FindByID(ctx, item.ProductID)
			if err != nil {
				return lineError(err, i, item.ProductID, "")
			}
			if !product.IsActive {
				return lineError(pkgerrors.New(pkgerrors.CodeNotFound, "product unavailable"), i, product.ID, product.Name)
			}
			stock, err := catalog.ResolveBucket(product, strings.TrimSpace(item.Size), strings.TrimSpace(item.Color))
			if err != nil {
				return lineError(err, i, product.ID, product.Name)
			}

			unitPrice := product.EffectivePrice()
			lineTotal := unitPrice * int64(item.Quantity)
			subtotal += lineTotal

			reservations = append(reservations, inventory.LineReservation{
				Bucket:      inventory.Bucket{ProductID: product.ID, Size: stock.Size, Color: stock.Color},
				Quantity:    item.Quantity,
				ProductName: product.Name,
			})
			lines = append(lines, models.OrderLineItem{
				Position:          i + 1,
				ProductID:         product.ID,
				Size:              stock.Size,
				Color:             stock.Color,
				UnitPrice:         unitPrice,
				Quantity:          item.Quantity,
				LineTotal:         lineTotal,
				DisplayName:       product.Name,
				DisplayImage:      product.Images.First(),
				ReservationStatus: enums.ReservationReserved,
			})
		}

		if err := s.inventory.ReserveAll(ctx, tx, reservations); err != nil {
			return err
		}

		now := s.now().UTC()
		shippingFee := s.checkout.ShippingFee
		order = &models.Order{
			OrderNumber:        s.numbers(now),
			CustomerName:       strings.TrimSpace(input.Customer.Name),
			CustomerEmail:      strings.TrimSpace(input.Customer.Email),
			CustomerPhone:      strings.TrimSpace(input.Customer.Phone),
			ShippingPostalCode: strings.TrimSpace(input.Shipping.PostalCode),
			ShippingPrefecture: strings.TrimSpace(input.Shipping.Prefecture),
			ShippingCity:       strings.TrimSpace(input.Shipping.City),
			ShippingLine1:      strings.TrimSpace(input.Shipping.Line1),
			ShippingLine2:      strings.TrimSpace(input.Shipping.Line2),
			Subtotal:           subtotal,
			ShippingFee:        shippingFee,
			Total:              subtotal + shippingFee,
			Currency:           strings.ToLower(s.checkout.Currency),
			PaymentStatus:      enums.PaymentStatusPending,
			OrderStatus:        enums.OrderStatusProcessing,
			Processor:          s.processor,
			LineItems:          lines,
			CreatedAt:          now,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Total:       order.Total,
				Currency:    order.Currency,
				Processor:   order.Processor,
				LineCount:   len(lines),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderNumber(ctx, order.OrderNumber), map[string]any{
		"total":      order.Total,
		"line_count": len(order.LineItems),
	})
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if !ValidOrderNumber(orderNumber) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.repo.FindByNumber(ctx, orderNumber)
}

// UpdateOrderStatus applies an admin fulfillment transition.
func (s *service) UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Status))
	}
	if input.TrackingNumber != nil {
		trimmed := strings.TrimSpace(*input.TrackingNumber)
		input.TrackingNumber = &trimmed
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}

		from := order.OrderStatus
		if from == input.Status {
			if input.TrackingNumber == nil {
				updated = order
				return nil
			}
			if _, err := repo.UpdateFulfillment(ctx, order.ID, from, from, input.TrackingNumber); err != nil {
				return err
			}
			updated, err = repo.FindByID(ctx, order.ID)
			return err
		}

		if !from.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, input.Status))
		}
		if input.Status == enums.OrderStatusConfirmed && order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be confirmed before payment")
		}

		changed, err := repo.UpdateFulfillment(ctx, order.ID, from, input.Status, input.TrackingNumber)
		if err != nil {
			return err
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: "admin", Subject: input.ActorSubject},
			OccurredAt:    s.now().UTC(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				From:           from,
				To:             input.Status,
				TrackingNumber: input.TrackingNumber,
			},
		}); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderNumber(ctx, updated.OrderNumber), map[string]any{
		"order_status": updated.OrderStatus,
		"actor":        input.ActorSubject,
	})
	s.logg.Info(logCtx, "order status updated")
	return updated, nil
}

func (s *service) validateInput(input CreateOrderInput) error {
	if err := s.validate.Struct(input); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			details := map[string]string{}
			for _, fieldErr := range errs {
				details[fieldErr.Namespace()] = fieldErr.Tag()
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	return nil
}

// lineError prefixes a per-line failure with its position and product so buyers can fix the cart.
func lineError(err error, index int, productID uuid.UUID, productName string) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	label := productName
	if label == "" {
		label = productID.String()
	}
	return pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("line %d (%s): %s", index+1, label, typed.Message())).
		WithDetails(map[string]any{
			"line":       index + 1,
			"product_id": productID.String(),
			"product":    productName,
		})
}
