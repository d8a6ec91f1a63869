package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	"github.com/freshkart/freshkart-backend/pkg/pagination"
)

// ListFilter narrows order listings.
type ListFilter struct {
	Status      *enums.OrderStatus
	OrderNumber string
}

// Repository persists orders and their immutable line items. Status and
// payment writes are guarded conditional updates: each checks the expected
// current state in its WHERE clause and reports via the returned bool
// whether the row was still there to claim, so concurrent writers cannot
// both apply the same transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error)
	CompletePayment(ctx context.Context, id uuid.UUID, paymentID string) (bool, error)
	FailPayment(ctx context.Context, id uuid.UUID, paymentID *string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, page pagination.Params) ([]models.Order, string, error)
	ListAll(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Order, string, error)
}
