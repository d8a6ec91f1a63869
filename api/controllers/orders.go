package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshkart/freshkart-backend/api/middleware"
	"github.com/freshkart/freshkart-backend/api/responses"
	"github.com/freshkart/freshkart-backend/api/validators"
	checkoutsvc "github.com/freshkart/freshkart-backend/internal/checkout"
	ordersvc "github.com/freshkart/freshkart-backend/internal/orders"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/pagination"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

// CreateOrder places an order from the request's items, or from the stored
// cart when no items are sent.
func CreateOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deliveryDate, err := time.Parse("2006-01-02", payload.DeliveryDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "delivery_date must be YYYY-MM-DD"))
			return
		}

		timeSlot, err := enums.ParseTimeSlot(payload.DeliveryTimeSlot)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery_time_slot"))
			return
		}
		paymentMethod, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
			return
		}

		items := make([]checkoutsvc.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := svc.CreateOrder(r.Context(), checkoutsvc.CreateOrderInput{
			UserID:              userID,
			Items:               items,
			DeliveryAddress:     payload.DeliveryAddress,
			DeliveryDate:        deliveryDate,
			DeliveryTimeSlot:    timeSlot,
			PaymentMethod:       paymentMethod,
			SpecialInstructions: payload.SpecialInstructions,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// ListMyOrders serves the caller's order history, newest first.
func ListMyOrders(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, page, err := orderListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListMine(r.Context(), userID, filter, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderListResponse(rows, next))
	}
}

// GetOrder serves one order to its owner, or to an admin.
func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), userID, middleware.IsAdminFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CancelOrder lets a customer back out of an order that has not started
// preparation.
func CancelOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor id")
	}
	return id, nil
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	return id, nil
}

func orderListParams(r *http.Request) (ordersvc.ListFilter, pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		return ordersvc.ListFilter{}, pagination.Params{}, err
	}

	filter := ordersvc.ListFilter{
		OrderNumber: strings.TrimSpace(r.URL.Query().Get("order_number")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return ordersvc.ListFilter{}, pagination.Params{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = &status
	}

	return filter, pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}

type createOrderRequest struct {
	Items               []orderItemRequest `json:"items" validate:"omitempty,dive"`
	DeliveryAddress     types.Address      `json:"delivery_address" validate:"required"`
	DeliveryDate        string             `json:"delivery_date" validate:"required"`
	DeliveryTimeSlot    string             `json:"delivery_time_slot" validate:"required"`
	PaymentMethod       string             `json:"payment_method" validate:"required,oneof=cod online"`
	SpecialInstructions *string            `json:"special_instructions,omitempty" validate:"omitempty,max=500"`
}

type orderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	ID                  uuid.UUID           `json:"id"`
	OrderNumber         string              `json:"order_number"`
	Items               []orderItemResponse `json:"items"`
	Subtotal            decimal.Decimal     `json:"subtotal"`
	DeliveryFee         decimal.Decimal     `json:"delivery_fee"`
	Total               decimal.Decimal     `json:"total"`
	Status              string              `json:"status"`
	PaymentMethod       string              `json:"payment_method"`
	PaymentStatus       string              `json:"payment_status"`
	PaymentID           *string             `json:"payment_id,omitempty"`
	DeliveryAddress     types.Address       `json:"delivery_address"`
	DeliveryArea        string              `json:"delivery_area"`
	DeliveryDate        string              `json:"delivery_date"`
	DeliveryTimeSlot    string              `json:"delivery_time_slot"`
	SpecialInstructions *string             `json:"special_instructions,omitempty"`
	TrackingNumber      *string             `json:"tracking_number,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

func newOrderListResponse(rows []models.Order, next string) orderListResponse {
	out := orderListResponse{Orders: make([]orderResponse, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, newOrderResponse(&rows[i]))
	}
	return out
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal,
		})
	}
	return orderResponse{
		ID:                  order.ID,
		OrderNumber:         order.OrderNumber,
		Items:               items,
		Subtotal:            order.Subtotal,
		DeliveryFee:         order.DeliveryFee,
		Total:               order.Total,
		Status:              order.Status.String(),
		PaymentMethod:       order.PaymentMethod.String(),
		PaymentStatus:       order.PaymentStatus.String(),
		PaymentID:           order.PaymentID,
		DeliveryAddress:     order.DeliveryAddress,
		DeliveryArea:        order.DeliveryArea,
		DeliveryDate:        order.DeliveryDate.Format("2006-01-02"),
		DeliveryTimeSlot:    order.DeliveryTimeSlot.String(),
		SpecialInstructions: order.SpecialInstructions,
		TrackingNumber:      order.TrackingNumber,
		CreatedAt:           order.CreatedAt,
	}
}
