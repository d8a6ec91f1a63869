package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/freshkart/freshkart-backend/api/responses"
	"github.com/freshkart/freshkart-backend/api/validators"
	deliverysvc "github.com/freshkart/freshkart-backend/internal/delivery"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/types"
)

// DeliveryQuote previews the delivery fee for an address and cart value
// before the customer commits to checkout.
func DeliveryQuote(svc deliverysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		var payload deliveryQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), payload.Address.Formatted(), payload.Subtotal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// DeliverySlots lists the fixed delivery windows.
func DeliverySlots(svc deliverysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}
		slots := svc.Slots()
		out := make([]string, 0, len(slots))
		for _, slot := range slots {
			out = append(out, slot.String())
		}
		responses.WriteSuccess(w, map[string][]string{"slots": out})
	}
}

type deliveryQuoteRequest struct {
	Address  types.Address   `json:"address" validate:"required"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
