package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the canonical catalog listing. Stock lives here and is only
// decremented inside a checkout transaction.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Category    string          `gorm:"column:category;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	ImageURL    string          `gorm:"column:image_url;not null"`
	Description string          `gorm:"column:description;not null"`
	Stock       int             `gorm:"column:stock;not null;default:0"`
	Unit        string          `gorm:"column:unit;not null"`
	Featured    bool            `gorm:"column:featured;not null;default:false"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
