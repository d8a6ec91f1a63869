package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/freshkart/freshkart-backend/api/responses"
	paymentsvc "github.com/freshkart/freshkart-backend/internal/payments"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/metrics"
)

// razorpayEvent mirrors the envelope Razorpay posts for payment events.
type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type razorpayPayment struct {
	ID    string            `json:"id"`
	Notes map[string]string `json:"notes"`
}

// RazorpayWebhook ingests Razorpay payment events. The signature is an
// HMAC-SHA256 of the raw body under the shared webhook secret.
func RazorpayWebhook(rec paymentsvc.Reconciler, webhookSecret string, guard eventGuard, orderMetrics *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
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

		sigHeader := r.Header.Get("X-Razorpay-Signature")
		if !validateRazorpaySignature(payload, webhookSecret, sigHeader) {
			orderMetrics.IncWebhookEvent("razorpay", "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid razorpay signature"))
			return
		}

		var event razorpayEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			orderMetrics.IncWebhookEvent("razorpay", "malformed")
			logAcked(ctx, logg, "webhook.malformed_payload", "")
			responses.WriteSuccess(w, map[string]string{"status": "malformed"})
			return
		}

		eventID := strings.TrimSpace(r.Header.Get("X-Razorpay-Event-Id"))
		if eventID == "" {
			eventID = event.Payload.Payment.Entity.ID
		}

		first := true
		if guard != nil {
			var guardErr error
			first, guardErr = guard.CheckAndMark(ctx, "razorpay", eventID)
			if guardErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "event_id", eventID), "webhook.guard_unavailable")
			}
		}
		if !first {
			orderMetrics.IncWebhookEvent("razorpay", "duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		result := handleRazorpayEvent(ctx, rec, &event, logg)
		orderMetrics.IncWebhookEvent("razorpay", result.label)
		if result.err != nil {
			if guard != nil {
				_ = guard.Release(ctx, "razorpay", eventID)
			}
			responses.WriteError(ctx, logg, w, result.err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": result.label})
	}
}

func handleRazorpayEvent(ctx context.Context, rec paymentsvc.Reconciler, event *razorpayEvent, logg *logger.Logger) webhookResult {
	switch event.Event {
	case "payment.captured", "payment.failed":
	default:
		return webhookResult{label: "ignored"}
	}

	payment := event.Payload.Payment.Entity
	orderID, ok := parseOrderID(payment.Notes["order_id"])
	if !ok {
		logAcked(ctx, logg, "webhook.missing_order_id", payment.ID)
		return webhookResult{label: "malformed"}
	}

	pe := paymentsvc.PaymentEvent{OrderID: orderID, PaymentID: payment.ID, Source: "razorpay"}

	var applied bool
	var err error
	if event.Event == "payment.captured" {
		applied, err = rec.Apply(ctx, pe)
	} else {
		applied, err = rec.MarkFailed(ctx, pe)
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			logAcked(ctx, logg, "webhook.unknown_order", payment.ID)
			return webhookResult{label: "unknown_order"}
		}
		return webhookResult{label: "error", err: err}
	}
	if !applied {
		return webhookResult{label: "duplicate"}
	}
	return webhookResult{label: "applied"}
}

func validateRazorpaySignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
