package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxOrderNumberLen = 32

type orderReader interface {
	GetByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
}

type statusUpdater interface {
	UpdateOrderStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error)
}

type paymentPoller interface {
	Poll(ctx context.Context, orderNumber string) (reconciliation.Result, error)
}

type updateStatusRequest struct {
	Status         string  `json:"status" validate:"required"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=64"`
}

// Create places an order and opens its checkout session.
func Create(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var input internalorders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		placement, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			ctx := r.Context()
			if logg != nil && placement.OrderNumber != "" {
				ctx = logg.WithOrderNumber(ctx, placement.OrderNumber)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, placement)
	}
}

// Get returns the buyer view of an order.
func Get(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderNumber, err := orderNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetByNumber(r.Context(), orderNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// PaymentStatus reconciles a pending order against its processor and returns the settled state.
func PaymentStatus(engine paymentPoller, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine unavailable"))
			return
		}

		orderNumber, err := orderNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.Poll(r.Context(), orderNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdateStatus applies an admin fulfillment change.
func UpdateStatus(svc statusUpdater, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateOrderStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:        orderID,
			Status:         enums.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
			TrackingNumber: req.TrackingNumber,
			ActorSubject:   middleware.SubjectFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewAdminOrderView(order))
	}
}

func orderNumberParam(r *http.Request) (string, error) {
	orderNumber := validators.PathParam(r, "orderNumber")
	if orderNumber == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if len(orderNumber) > maxOrderNumberLen {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return strings.ToUpper(orderNumber), nil
}
