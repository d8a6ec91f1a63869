package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/internal/orders"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryReleaser returns reserved stock when a failed payment cancels
// the order.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// PaymentEvent is a gateway-agnostic payment notification.
type PaymentEvent struct {
	OrderID   uuid.UUID
	PaymentID string
	Source    string
}

// Reconciler applies gateway payment outcomes to orders. Every payment
// write is a conditional update whose WHERE clause requires payment_status
// to still be pending, so redelivered and racing events collapse to a
// single apply no matter how they interleave.
type Reconciler interface {
	Apply(ctx context.Context, event PaymentEvent) (bool, error)
	MarkFailed(ctx context.Context, event PaymentEvent) (bool, error)
	ConfirmManual(ctx context.Context, ownerID, orderID uuid.UUID, paymentID string) (*models.Order, error)
}

type reconciler struct {
	repo      orders.Repository
	tx        txRunner
	inventory InventoryReleaser
	logg      *logger.Logger
}

// NewReconciler builds the payment reconciler.
func NewReconciler(repo orders.Repository, tx txRunner, inventory InventoryReleaser, logg *logger.Logger) (Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	return &reconciler{repo: repo, tx: tx, inventory: inventory, logg: logg}, nil
}

// Apply marks the order paid. The returned bool is false when the event was
// a duplicate and nothing changed.
func (r *reconciler) Apply(ctx context.Context, event PaymentEvent) (bool, error) {
	applied := false
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, event.OrderID)
		if err != nil {
			return err
		}

		if order.PaymentStatus != enums.PaymentStatusPending {
			r.logDuplicate(ctx, order, event)
			return nil
		}

		settled, err := repo.CompletePayment(ctx, order.ID, event.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}
		if !settled {
			// A concurrent reconciliation won the row between our read and
			// the guarded write.
			r.logDuplicate(ctx, order, event)
			return nil
		}
		if _, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied && r.logg != nil {
		lctx := r.logg.WithFields(ctx, map[string]any{
			"order_id":   event.OrderID.String(),
			"payment_id": event.PaymentID,
			"source":     event.Source,
		})
		r.logg.Info(lctx, "payment.completed")
	}
	return applied, nil
}

// MarkFailed records a failed payment. A pending order is cancelled and its
// stock returned; an order that already completed payment is left alone.
func (r *reconciler) MarkFailed(ctx context.Context, event PaymentEvent) (bool, error) {
	applied := false
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, event.OrderID)
		if err != nil {
			return err
		}

		if order.PaymentStatus != enums.PaymentStatusPending {
			r.logDuplicate(ctx, order, event)
			return nil
		}

		var paymentID *string
		if event.PaymentID != "" {
			paymentID = &event.PaymentID
		}
		failed, err := repo.FailPayment(ctx, order.ID, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
		}
		if !failed {
			r.logDuplicate(ctx, order, event)
			return nil
		}

		// The cancel guard ties the stock release to exactly one writer.
		cancelled, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if cancelled {
			for _, item := range order.Items {
				if err := r.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied && r.logg != nil {
		lctx := r.logg.WithFields(ctx, map[string]any{
			"order_id": event.OrderID.String(),
			"source":   event.Source,
		})
		r.logg.Warn(lctx, "payment.failed")
	}
	return applied, nil
}

// ConfirmManual records an out-of-band payment (COD collection, bank
// transfer) on the caller's own order.
func (r *reconciler) ConfirmManual(ctx context.Context, ownerID, orderID uuid.UUID, paymentID string) (*models.Order, error) {
	var confirmed *models.Order
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != ownerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		if order.PaymentStatus == enums.PaymentStatusCompleted {
			// Replayed confirmation: answer with the already-settled order.
			confirmed = order
			return nil
		}
		if order.PaymentStatus == enums.PaymentStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already failed").
				WithDetails(map[string]any{"payment_status": string(order.PaymentStatus)})
		}

		settled, err := repo.CompletePayment(ctx, order.ID, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}
		if !settled {
			// A gateway event settled the payment between our read and the
			// guarded write; answer with whatever it left behind.
			order, err = repo.FindByID(ctx, orderID)
			if err != nil {
				return err
			}
			if order.PaymentStatus == enums.PaymentStatusFailed {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already failed").
					WithDetails(map[string]any{"payment_status": string(order.PaymentStatus)})
			}
			confirmed = order
			return nil
		}
		if _, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
		}

		pid := paymentID
		order.PaymentStatus = enums.PaymentStatusCompleted
		order.PaymentID = &pid
		if order.Status == enums.OrderStatusPending {
			order.Status = enums.OrderStatusConfirmed
		}
		confirmed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

func (r *reconciler) logDuplicate(ctx context.Context, order *models.Order, event PaymentEvent) {
	if r.logg == nil {
		return
	}
	lctx := r.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"payment_status": string(order.PaymentStatus),
		"source":         event.Source,
	})
	r.logg.Debug(lctx, "payment.duplicate_event")
}
