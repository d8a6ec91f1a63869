package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/freshkart/freshkart-backend/internal/cart"
	"github.com/freshkart/freshkart-backend/internal/inventory"
	"github.com/freshkart/freshkart-backend/internal/orders"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	"github.com/freshkart/freshkart-backend/pkg/enums"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type stubQuoter struct {
	quote types.DeliveryQuote
	err   error
}

func (s stubQuoter) Quote(_ context.Context, _ string, _ decimal.Decimal) (types.DeliveryQuote, error) {
	return s.quote, s.err
}

func deliverableQuote() types.DeliveryQuote {
	return types.DeliveryQuote{
		Fee:         decimal.NewFromInt(20),
		DistanceKM:  4.2,
		Deliverable: true,
		Area:        "West Mumbai",
		Message:     "Delivery available",
	}
}

func testAddress() types.Address {
	return types.Address{
		Street:  "14 Hill Road",
		City:    "Mumbai",
		State:   "MH",
		Pincode: "400050",
	}
}

func newTestService(t *testing.T, quoter DeliveryQuoter) (Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc, err := NewService(
		gormTxRunner{db: db},
		orders.NewRepository(db),
		cart.NewRepository(db),
		inventory.NewLedger(),
		quoter,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func baseInput(userID uuid.UUID, items []ItemInput) CreateOrderInput {
	return CreateOrderInput{
		UserID:           userID,
		Items:            items,
		DeliveryAddress:  testAddress(),
		DeliveryDate:     time.Now().UTC().AddDate(0, 0, 1),
		DeliveryTimeSlot: enums.TimeSlotMorning,
		PaymentMethod:    enums.PaymentMethodCOD,
	}
}

func TestCreateOrderFromExplicitItems(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, stubQuoter{quote: deliverableQuote()})
	ctx := context.Background()
	userID := uuid.New()

	milk := seedProduct(t, db, "Milk", 10, "45.00")
	bread := seedProduct(t, db, "Bread", 5, "30.00")

	order, err := svc.CreateOrder(ctx, baseInput(userID, []ItemInput{
		{ProductID: milk, Quantity: 2},
		{ProductID: bread, Quantity: 1},
	}))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
	}
	if want := decimal.RequireFromString("120.00"); !order.Subtotal.Equal(want) {
		t.Fatalf("expected subtotal %s, got %s", want, order.Subtotal)
	}
	if want := decimal.RequireFromString("140.00"); !order.Total.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, order.Total)
	}
	if order.DeliveryArea != "West Mumbai" {
		t.Fatalf("unexpected delivery area %q", order.DeliveryArea)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	if order.Items[0].ProductName != "Milk" || !order.Items[0].UnitPrice.Equal(decimal.RequireFromString("45.00")) {
		t.Fatalf("unexpected snapshot: %+v", order.Items[0])
	}

	if got := loadStock(t, db, milk); got != 8 {
		t.Fatalf("expected milk stock 8, got %d", got)
	}

	var persisted models.Order
	if err := db.Preload("Items").First(&persisted, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if persisted.OrderNumber != order.OrderNumber || len(persisted.Items) != 2 {
		t.Fatalf("unexpected persisted order: %+v", persisted)
	}
}

func TestCreateOrderFromCart(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, stubQuoter{quote: deliverableQuote()})
	ctx := context.Background()
	userID := uuid.New()

	milk := seedProduct(t, db, "Milk", 10, "45.00")
	seedCartItem(t, db, userID, milk, 3)

	order, err := svc.CreateOrder(ctx, baseInput(userID, nil))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", order.Items)
	}

	// Checkout consumes the cart.
	var count int64
	if err := db.Model(&models.CartItem{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count cart: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty cart, got %d items", count)
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, stubQuoter{quote: deliverableQuote()})

	_, err := svc.CreateOrder(context.Background(), baseInput(uuid.New(), nil))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, stubQuoter{quote: deliverableQuote()})
	ctx := context.Background()

	milk := seedProduct(t, db, "Milk", 10, "45.00")

	order, err := svc.CreateOrder(ctx, baseInput(uuid.New(), []ItemInput{
		{ProductID: milk, Quantity: 2},
		{ProductID: milk, Quantity: 1},
	}))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 3 {
		t.Fatalf("expected one merged line of 3, got %+v", order.Items)
	}
	if got := loadStock(t, db, milk); got != 7 {
		t.Fatalf("expected stock 7, got %d", got)
	}
}

func TestCreateOrderInsufficientStockRollsBackEverything(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, stubQuoter{quote: deliverableQuote()})
	ctx := context.Background()
	userID := uuid.New()

	milk := seedProduct(t, db, "Milk", 10, "45.00")
	eggs := seedProduct(t, db, "Eggs", 1, "80.00")
	seedCartItem(t, db, userID, milk, 2)

	_, err := svc.CreateOrder(ctx, baseInput(userID, []ItemInput{
		{ProductID: milk, Quantity: 2},
		{ProductID: eggs, Quantity: 5},
	}))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := loadStock(t, db, milk); got != 10 {
		t.Fatalf("expected milk stock 10 after rollback, got %d", got)
	}
	var orderCount int64
	if err := db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected no orders persisted, got %d", orderCount)
	}

	// A failed checkout leaves the cart untouched.
	var cartCount int64
	if err := db.Model(&models.CartItem{}).Where("user_id = ?", userID).Count(&cartCount).Error; err != nil {
		t.Fatalf("count cart: %v", err)
	}
	if cartCount != 1 {
		t.Fatalf("expected cart intact, got %d items", cartCount)
	}
}

func TestCreateOrderUndeliverableAddress(t *testing.T) {
	t.Parallel()

	quote := types.DeliveryQuote{Deliverable: false, DistanceKM: 42, Message: "Sorry, we do not deliver to this address yet"}
	svc, db := newTestService(t, stubQuoter{quote: quote})
	ctx := context.Background()

	milk := seedProduct(t, db, "Milk", 10, "45.00")

	_, err := svc.CreateOrder(ctx, baseInput(uuid.New(), []ItemInput{{ProductID: milk, Quantity: 1}}))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDeliveryUnavailable {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loadStock(t, db, milk); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestCreateOrderRejectsPastDeliveryDate(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, stubQuoter{quote: deliverableQuote()})
	milk := seedProduct(t, db, "Milk", 10, "45.00")

	input := baseInput(uuid.New(), []ItemInput{{ProductID: milk, Quantity: 1}})
	input.DeliveryDate = time.Now().UTC().AddDate(0, 0, -2)

	_, err := svc.CreateOrder(context.Background(), input)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateOrderRejectsUnknownSlot(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t, stubQuoter{quote: deliverableQuote()})
	milk := seedProduct(t, db, "Milk", 10, "45.00")

	input := baseInput(uuid.New(), []ItemInput{{ProductID: milk, Quantity: 1}})
	input.DeliveryTimeSlot = "23:00-02:00"

	_, err := svc.CreateOrder(context.Background(), input)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func seedProduct(t *testing.T, db *gorm.DB, name string, stock int, price string) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		Name:     name,
		Category: "dairy",
		Price:    decimal.RequireFromString(price),
		ImageURL: "https://img.freshkart.in/" + name,
		Unit:     "pc",
		Stock:    stock,
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func seedCartItem(t *testing.T, db *gorm.DB, userID, productID uuid.UUID, qty int) {
	t.Helper()
	item := models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
}

func loadStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
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
CREATE TABLE cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
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
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
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
