package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/internal/inventory"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/pagination"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, inventory.NewLedger(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func TestUpdateStatusProgression(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPending, 2)

	tracking := "TRK-9001"
	updated, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID:        order.ID,
		Status:         enums.OrderStatusConfirmed,
		TrackingNumber: &tracking,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if updated.TrackingNumber == nil || *updated.TrackingNumber != tracking {
		t.Fatalf("expected tracking number set, got %+v", updated.TrackingNumber)
	}
}

func TestUpdateStatusRejectsSkippedStates(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPending, 1)

	_, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusDelivered})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateStatusTerminalIsImmovable(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusDelivered, 1)

	_, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateStatusCancelReleasesStock(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusConfirmed, 3)

	if _, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var product models.Product
	if err := db.First(&product, "id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	// Seeded with 10 in stock, 3 reserved by the order.
	if product.Stock != 13 {
		t.Fatalf("expected stock 13 after release, got %d", product.Stock)
	}
}

func TestCustomerCancelOwnPendingOrder(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	order := seedOrder(t, db, userID, enums.OrderStatusPending, 2)

	cancelled, err := svc.Cancel(ctx, userID, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	var product models.Product
	if err := db.First(&product, "id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if product.Stock != 12 {
		t.Fatalf("expected stock 12 after release, got %d", product.Stock)
	}
}

func TestCustomerCancelRejectedOncePreparing(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	order := seedOrder(t, db, userID, enums.OrderStatusPreparing, 1)

	_, err := svc.Cancel(ctx, userID, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCancelHidesForeignOrders(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPending, 1)

	_, err := svc.Cancel(ctx, uuid.New(), order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	order := seedOrder(t, db, owner, enums.OrderStatusPending, 1)

	if _, err := svc.Get(ctx, owner, false, order.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.Get(ctx, uuid.New(), true, order.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}
	_, err := svc.Get(ctx, uuid.New(), false, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListMineFiltersByStatus(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	seedOrder(t, db, userID, enums.OrderStatusPending, 1)
	seedOrder(t, db, userID, enums.OrderStatusDelivered, 1)
	seedOrder(t, db, uuid.New(), enums.OrderStatusPending, 1)

	status := enums.OrderStatusPending
	rows, next, err := svc.ListMine(ctx, userID, ListFilter{Status: &status}, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != enums.OrderStatusPending {
		t.Fatalf("unexpected rows: %d", len(rows))
	}
	if next != "" {
		t.Fatalf("unexpected next cursor: %q", next)
	}
}

func seedOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus, qty int) *models.Order {
	t.Helper()

	product := models.Product{
		ID:       uuid.New(),
		Name:     "Basmati Rice",
		Category: "staples",
		Price:    decimal.RequireFromString("120.00"),
		ImageURL: "https://img.freshkart.in/rice",
		Unit:     "kg",
		Stock:    10,
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	lineTotal := product.Price.Mul(decimal.NewFromInt(int64(qty)))
	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: "KR20250901" + uuid.NewString()[:6],
		UserID:      userID,
		Items: []models.OrderItem{{
			ID:           uuid.New(),
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.ImageURL,
			UnitPrice:    product.Price,
			Quantity:     qty,
			LineTotal:    lineTotal,
		}},
		Subtotal:      lineTotal,
		DeliveryFee:   decimal.NewFromInt(20),
		Total:         lineTotal.Add(decimal.NewFromInt(20)),
		Status:        status,
		PaymentMethod: enums.PaymentMethodCOD,
		PaymentStatus: enums.PaymentStatusPending,
		DeliveryAddress: types.Address{
			Street:  "14 Hill Road",
			City:    "Mumbai",
			State:   "MH",
			Pincode: "400050",
		},
		DeliveryArea:     "West Mumbai",
		DeliveryDate:     mustDate(t, "2025-09-03"),
		DeliveryTimeSlot: enums.TimeSlotMorning,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return &order
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return parsed
}

var testDDL = []string{`
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  price NUMERIC NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  stock INTEGER NOT NULL DEFAULT 0,
  unit TEXT NOT NULL DEFAULT '',
  featured INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  subtotal NUMERIC NOT NULL,
  delivery_fee NUMERIC NOT NULL,
  total NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_id TEXT,
  delivery_address TEXT,
  delivery_area TEXT,
  delivery_date DATETIME NOT NULL,
  delivery_time_slot TEXT NOT NULL,
  special_instructions TEXT,
  tracking_number TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  product_image TEXT,
  unit_price NUMERIC NOT NULL,
  quantity INTEGER NOT NULL,
  line_total NUMERIC NOT NULL,
  created_at DATETIME
);`}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, ddl := range testDDL {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
