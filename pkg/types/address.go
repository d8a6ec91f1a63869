package types

import "strings"

// Address is the structured delivery address captured on an order. It is
// copied onto the order at creation time so later profile edits cannot alter
// order history.
type Address struct {
	Street   string `json:"street" validate:"required"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state" validate:"required"`
	Pincode  string `json:"pincode" validate:"required"`
	Landmark string `json:"landmark,omitempty"`
}

// Formatted renders the address as a single geocodable line.
func (a Address) Formatted() string {
	parts := make([]string, 0, 4)
	for _, part := range []string{a.Street, a.City, a.State, a.Pincode} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}
