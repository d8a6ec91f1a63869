package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/freshkart/freshkart-backend/api/responses"
	paymentsvc "github.com/freshkart/freshkart-backend/internal/payments"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/metrics"
)

type eventGuard interface {
	CheckAndMark(ctx context.Context, gateway, eventID string) (bool, error)
	Release(ctx context.Context, gateway, eventID string) error
}

// StripeWebhook ingests Stripe payment events. Anything the reconciler
// cannot act on is acknowledged so Stripe stops redelivering it; only
// storage failures return a retryable status.
func StripeWebhook(rec paymentsvc.Reconciler, signingSecret string, guard eventGuard, orderMetrics *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if rec == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			orderMetrics.IncWebhookEvent("stripe", "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, signingSecret)
		if err != nil {
			orderMetrics.IncWebhookEvent("stripe", "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "verify signature"))
			return
		}

		first := true
		if guard != nil {
			var guardErr error
			first, guardErr = guard.CheckAndMark(ctx, "stripe", event.ID)
			if guardErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "event_id", event.ID), "webhook.guard_unavailable")
			}
		}
		if !first {
			orderMetrics.IncWebhookEvent("stripe", "duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		result := handleStripeEvent(ctx, rec, &event, logg)
		orderMetrics.IncWebhookEvent("stripe", result.label)
		if result.err != nil {
			if guard != nil {
				_ = guard.Release(ctx, "stripe", event.ID)
			}
			responses.WriteError(ctx, logg, w, result.err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": result.label})
	}
}

type webhookResult struct {
	label string
	err   error
}

func handleStripeEvent(ctx context.Context, rec paymentsvc.Reconciler, event *stripe.Event, logg *logger.Logger) webhookResult {
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return webhookResult{label: "ignored"}
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		logAcked(ctx, logg, "webhook.malformed_payload", event.ID)
		return webhookResult{label: "malformed"}
	}

	orderID, ok := parseOrderID(intent.Metadata["order_id"])
	if !ok {
		logAcked(ctx, logg, "webhook.missing_order_id", event.ID)
		return webhookResult{label: "malformed"}
	}

	pe := paymentsvc.PaymentEvent{OrderID: orderID, PaymentID: intent.ID, Source: "stripe"}

	var applied bool
	var err error
	if event.Type == "payment_intent.succeeded" {
		applied, err = rec.Apply(ctx, pe)
	} else {
		applied, err = rec.MarkFailed(ctx, pe)
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			// The order was never ours (or was purged); retrying won't help.
			logAcked(ctx, logg, "webhook.unknown_order", event.ID)
			return webhookResult{label: "unknown_order"}
		}
		return webhookResult{label: "error", err: err}
	}
	if !applied {
		return webhookResult{label: "duplicate"}
	}
	return webhookResult{label: "applied"}
}

func parseOrderID(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func logAcked(ctx context.Context, logg *logger.Logger, msg, eventID string) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithField(ctx, "event_id", eventID), msg)
}
