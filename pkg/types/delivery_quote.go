package types

import "github.com/shopspring/decimal"

// DeliveryQuote is the transient verdict produced per checkout. Its fee and
// deliverability are folded into the order; the quote itself is not persisted.
type DeliveryQuote struct {
	Fee         decimal.Decimal `json:"fee"`
	DistanceKM  float64         `json:"distance_km"`
	Deliverable bool            `json:"deliverable"`
	Area        string          `json:"area"`
	Message     string          `json:"message,omitempty"`
}
