package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/internal/cart"
	"github.com/freshkart/freshkart-backend/internal/inventory"
	"github.com/freshkart/freshkart-backend/internal/orders"
	pkgdb "github.com/freshkart/freshkart-backend/pkg/db"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/metrics"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Reserver decrements stock inside the checkout transaction.
type Reserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []inventory.ReservationRequest) ([]inventory.Reservation, error)
}

// DeliveryQuoter prices delivery for the order's address and subtotal.
type DeliveryQuoter interface {
	Quote(ctx context.Context, address string, subtotal decimal.Decimal) (types.DeliveryQuote, error)
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput carries everything needed to place an order. An empty
// Items slice means "order whatever is in my cart".
type CreateOrderInput struct {
	UserID              uuid.UUID
	Items               []ItemInput
	DeliveryAddress     types.Address
	DeliveryDate        time.Time
	DeliveryTimeSlot    enums.TimeSlot
	PaymentMethod       enums.PaymentMethod
	SpecialInstructions *string
}

// Service builds orders from carts or explicit item lists.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	cartRepo   cart.Repository
	reserver   Reserver
	quoter     DeliveryQuoter
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	cartRepo cart.Repository,
	reserver Reserver,
	quoter DeliveryQuoter,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("reserver required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("delivery quoter required")
	}
	return &service{
		tx:         tx,
		ordersRepo: ordersRepo,
		cartRepo:   cartRepo,
		reserver:   reserver,
		quoter:     quoter,
		metrics:    orderMetrics,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := s.createOrder(ctx, input)
	if err != nil {
		s.metrics.IncCheckoutFailure(failureReason(err))
		return nil, err
	}

	s.metrics.IncOrderCreated()

	// The cart is a convenience copy of the order, so a failed clear must
	// never undo a committed checkout.
	if clearErr := s.cartRepo.Clear(ctx, input.UserID); clearErr != nil && s.logg != nil {
		cctx := s.logg.WithFields(ctx, map[string]any{
			"user_id":  input.UserID.String(),
			"order_id": order.ID.String(),
		})
		s.logg.Warn(cctx, "checkout.cart_clear_failed")
	}

	if s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"total":        order.Total.String(),
		})
		s.logg.Info(lctx, "checkout.order_created")
	}
	return order, nil
}

func (s *service) createOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	var order *models.Order
	backoff := retry.WithMaxRetries(2, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		order = nil
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			built, err := s.buildOrder(ctx, tx, input)
			if err != nil {
				return err
			}
			order = built
			return nil
		})
		// A duplicate order number is the only failure worth replaying:
		// a fresh attempt draws a fresh suffix.
		if txErr != nil && pkgdb.IsUniqueViolation(txErr, "orders_order_number_key") {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) buildOrder(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*models.Order, error) {
	requests, err := s.resolveItems(ctx, tx, input)
	if err != nil {
		return nil, err
	}

	reservations, err := s.reserver.Reserve(ctx, tx, requests)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, res := range reservations {
		subtotal = subtotal.Add(res.LineTotal)
	}

	quote, err := s.quoter.Quote(ctx, input.DeliveryAddress.Formatted(), subtotal)
	if err != nil {
		return nil, err
	}
	if !quote.Deliverable {
		return nil, pkgerrors.New(pkgerrors.CodeDeliveryUnavailable, quote.Message).
			WithDetails(map[string]any{"distance_km": quote.DistanceKM})
	}

	items := make([]models.OrderItem, 0, len(reservations))
	for _, res := range reservations {
		items = append(items, models.OrderItem{
			ID:           uuid.New(),
			ProductID:    res.ProductID,
			ProductName:  res.Name,
			ProductImage: res.ImageURL,
			UnitPrice:    res.UnitPrice,
			Quantity:     res.Quantity,
			LineTotal:    res.LineTotal,
		})
	}

	order := &models.Order{
		ID:                  uuid.New(),
		OrderNumber:         newOrderNumber(s.now()),
		UserID:              input.UserID,
		Items:               items,
		Subtotal:            subtotal,
		DeliveryFee:         quote.Fee,
		Total:               subtotal.Add(quote.Fee),
		Status:              enums.OrderStatusPending,
		PaymentMethod:       input.PaymentMethod,
		PaymentStatus:       enums.PaymentStatusPending,
		DeliveryAddress:     input.DeliveryAddress,
		DeliveryArea:        quote.Area,
		DeliveryDate:        input.DeliveryDate,
		DeliveryTimeSlot:    input.DeliveryTimeSlot,
		SpecialInstructions: input.SpecialInstructions,
	}

	if err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// resolveItems turns the request into reservation requests, falling back to
// the stored cart when no explicit items were sent. Duplicate product lines
// are merged so the ledger sees one decrement per product.
func (s *service) resolveItems(ctx context.Context, tx *gorm.DB, input CreateOrderInput) ([]inventory.ReservationRequest, error) {
	items := input.Items
	if len(items) == 0 {
		cartItems, err := s.cartRepo.WithTx(tx).ItemsForUser(ctx, input.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		for _, ci := range cartItems {
			items = append(items, ItemInput{ProductID: ci.ProductID, Quantity: ci.Quantity})
		}
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	merged := make(map[uuid.UUID]int, len(items))
	ordered := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, seen := merged[item.ProductID]; !seen {
			ordered = append(ordered, item.ProductID)
		}
		merged[item.ProductID] += item.Quantity
	}

	requests := make([]inventory.ReservationRequest, 0, len(ordered))
	for _, id := range ordered {
		requests = append(requests, inventory.ReservationRequest{ProductID: id, Quantity: merged[id]})
	}
	return requests, nil
}

func (s *service) validateInput(input CreateOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"payment_method": string(input.PaymentMethod)})
	}
	if !input.DeliveryTimeSlot.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery time slot").
			WithDetails(map[string]any{"delivery_time_slot": string(input.DeliveryTimeSlot)})
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if input.DeliveryDate.Before(today) {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date cannot be in the past")
	}
	return nil
}

func failureReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
