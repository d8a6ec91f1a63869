package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshkart/freshkart-backend/pkg/enums"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

// Order is the durable record produced by checkout. Items and the delivery
// address are snapshots owned by the order; status moves only through the
// order state machine and payment fields only through the reconciler.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         string              `gorm:"column:order_number;uniqueIndex;not null"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Subtotal            decimal.Decimal     `gorm:"column:subtotal;type:numeric(10,2);not null"`
	DeliveryFee         decimal.Decimal     `gorm:"column:delivery_fee;type:numeric(10,2);not null"`
	Total               decimal.Decimal     `gorm:"column:total;type:numeric(10,2);not null"`
	Status              enums.OrderStatus   `gorm:"column:status;not null;default:'pending';index"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentID           *string             `gorm:"column:payment_id"`
	DeliveryAddress     types.Address       `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	DeliveryArea        string              `gorm:"column:delivery_area"`
	DeliveryDate        time.Time           `gorm:"column:delivery_date;not null"`
	DeliveryTimeSlot    enums.TimeSlot      `gorm:"column:delivery_time_slot;not null"`
	SpecialInstructions *string             `gorm:"column:special_instructions"`
	TrackingNumber      *string             `gorm:"column:tracking_number"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
