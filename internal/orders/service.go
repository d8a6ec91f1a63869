package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryReleaser returns reserved stock when an order is cancelled.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// UpdateStatusInput carries an admin-driven status change.
type UpdateStatusInput struct {
	OrderID        uuid.UUID
	Status         enums.OrderStatus
	TrackingNumber *string
}

// Service defines order reads and state-machine operations.
type Service interface {
	Get(ctx context.Context, actorID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*models.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, filter ListFilter, page pagination.Params) ([]models.Order, string, error)
	ListAdmin(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Order, string, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory InventoryReleaser
	logg      *logger.Logger
}

// NewService builds the orders service.
func NewService(repo Repository, tx txRunner, inventory InventoryReleaser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	return &service{repo: repo, tx: tx, inventory: inventory, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, actorID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Non-owners get the same answer as a missing order.
	if !isAdmin && order.UserID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, filter ListFilter, page pagination.Params) ([]models.Order, string, error) {
	return s.repo.ListByUser(ctx, userID, filter, page)
}

func (s *service) ListAdmin(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Order, string, error) {
	return s.repo.ListAll(ctx, filter, page)
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": string(input.Status)})
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}

		var extra map[string]any
		if input.TrackingNumber != nil {
			extra = map[string]any{"tracking_number": *input.TrackingNumber}
		}
		if err := s.transition(ctx, tx, repo, order, input.Status, extra); err != nil {
			return err
		}
		if input.TrackingNumber != nil {
			order.TrackingNumber = input.TrackingNumber
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"order_id": updated.ID.String(),
			"status":   string(updated.Status),
		})
		s.logg.Info(ctx, "order.status_changed")
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		// Customers can only back out before the kitchen starts packing.
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": string(order.Status)})
		}

		if err := s.transition(ctx, tx, repo, order, enums.OrderStatusCancelled, nil); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, cancelled.ID.String()), "order.cancelled_by_customer")
	}
	return cancelled, nil
}

// transition applies the state machine to an order already loaded in tx,
// releasing reserved stock when the move is a cancellation. The write itself
// is a conditional update keyed on the status the caller read, so a
// concurrent writer that moved the order first turns this into a conflict
// instead of a second apply.
func (s *service) transition(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, to enums.OrderStatus, extra map[string]any) error {
	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is in a terminal state").
			WithDetails(map[string]any{"status": string(order.Status)})
	}
	if !CanTransition(order.Status, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
			WithDetails(map[string]any{"from": string(order.Status), "to": string(to)})
	}

	moved, err := repo.TransitionStatus(ctx, order.ID, order.Status, to, extra)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
			WithDetails(map[string]any{"from": string(order.Status), "to": string(to)})
	}

	if to == enums.OrderStatusCancelled {
		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
	}

	order.Status = to
	return nil
}
