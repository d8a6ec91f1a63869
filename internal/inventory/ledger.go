package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/pkg/db/models"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
)

// ReservationRequest asks for a quantity of a single product.
type ReservationRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// Reservation is the snapshot captured at the moment stock was decremented.
// Orders store these values so later price or catalog changes do not rewrite
// history.
type Reservation struct {
	ProductID uuid.UUID
	Name      string
	ImageURL  string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Ledger decrements and restores product stock inside a caller-owned
// transaction. All-or-nothing semantics come from the transaction itself:
// any error aborts it and every prior decrement rolls back.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger builds the stock ledger.
func NewLedger() Ledger {
	return ledger{}
}

func (ledger) Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}

	reservations := make([]Reservation, 0, len(requests))
	for _, req := range requests {
		if req.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": req.ProductID.String()})
		}

		var product models.Product
		err := tx.WithContext(ctx).
			Where("id = ? AND is_active = ?", req.ProductID, true).
			First(&product).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": req.ProductID.String()})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		// The guarded update is the actual reservation: it only fires when
		// enough stock remains, so two concurrent checkouts cannot both win
		// the last unit.
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND is_active = ? AND stock >= ?", req.ProductID, true, req.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", req.Quantity))
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+product.Name).
				WithDetails(map[string]any{
					"product_id": req.ProductID.String(),
					"product":    product.Name,
					"requested":  req.Quantity,
					"available":  product.Stock,
				})
		}

		qty := decimal.NewFromInt(int64(req.Quantity))
		reservations = append(reservations, Reservation{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  req.Quantity,
			LineTotal: product.Price.Mul(qty),
		})
	}
	return reservations, nil
}

func (ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID.String()})
	}
	return nil
}
