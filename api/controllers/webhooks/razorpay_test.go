package webhooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	paymentsvc "github.com/freshkart/freshkart-backend/internal/payments"
)

const testRazorpaySecret = "rzp_webhook_secret"

func TestRazorpayWebhookAppliesPayment(t *testing.T) {
	orderID := uuid.New()
	payload := buildRazorpayPayload(t, "payment.captured", orderID.String())
	rec := &fakeReconciler{}
	guard := paymentsvc.NewEventGuard(newInMemoryStore(), time.Minute)
	handler := RazorpayWebhook(rec, testRazorpaySecret, guard, nil, nil)

	res := serveRazorpay(handler, payload, signRazorpay(payload), "evt_100")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if rec.applyCalls != 1 {
		t.Fatalf("expected one apply call, got %d", rec.applyCalls)
	}
	if rec.lastEvent.OrderID != orderID || rec.lastEvent.Source != "razorpay" {
		t.Fatalf("unexpected event: %+v", rec.lastEvent)
	}
}

func TestRazorpayWebhookDuplicateDelivery(t *testing.T) {
	payload := buildRazorpayPayload(t, "payment.captured", uuid.NewString())
	rec := &fakeReconciler{}
	guard := paymentsvc.NewEventGuard(newInMemoryStore(), time.Minute)
	handler := RazorpayWebhook(rec, testRazorpaySecret, guard, nil, nil)

	sig := signRazorpay(payload)
	if res := serveRazorpay(handler, payload, sig, "evt_200"); res.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", res.Code)
	}
	res := serveRazorpay(handler, payload, sig, "evt_200")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", res.Code)
	}
	if rec.applyCalls != 1 {
		t.Fatalf("expected duplicate to skip the reconciler, got %d calls", rec.applyCalls)
	}
}

func TestRazorpayWebhookInvalidSignature(t *testing.T) {
	payload := buildRazorpayPayload(t, "payment.captured", uuid.NewString())
	rec := &fakeReconciler{}
	handler := RazorpayWebhook(rec, testRazorpaySecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveRazorpay(handler, payload, "deadbeef", "evt_300")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if rec.applyCalls != 0 {
		t.Fatal("reconciler must not run on a bad signature")
	}
}

func TestRazorpayWebhookFailureEvent(t *testing.T) {
	orderID := uuid.New()
	payload := buildRazorpayPayload(t, "payment.failed", orderID.String())
	rec := &fakeReconciler{}
	handler := RazorpayWebhook(rec, testRazorpaySecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveRazorpay(handler, payload, signRazorpay(payload), "evt_400")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if rec.failCalls != 1 || rec.applyCalls != 0 {
		t.Fatalf("expected one mark-failed call, got apply=%d fail=%d", rec.applyCalls, rec.failCalls)
	}
}

func TestRazorpayWebhookMalformedPayloadIsAcknowledged(t *testing.T) {
	payload := []byte(`{"event": "payment.captured", "payload": 42`)
	rec := &fakeReconciler{}
	handler := RazorpayWebhook(rec, testRazorpaySecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveRazorpay(handler, payload, signRazorpay(payload), "evt_500")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", res.Code)
	}
	if rec.applyCalls != 0 {
		t.Fatal("reconciler must not run on malformed payloads")
	}
}

func TestRazorpayWebhookIgnoresUnrelatedEvents(t *testing.T) {
	payload := buildRazorpayPayload(t, "refund.processed", uuid.NewString())
	rec := &fakeReconciler{}
	handler := RazorpayWebhook(rec, testRazorpaySecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveRazorpay(handler, payload, signRazorpay(payload), "evt_600")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if rec.applyCalls != 0 || rec.failCalls != 0 {
		t.Fatal("unrelated events must not reach the reconciler")
	}
}

func serveRazorpay(handler http.HandlerFunc, payload []byte, signature, eventID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", bytes.NewReader(payload))
	req.Header.Set("X-Razorpay-Signature", signature)
	req.Header.Set("X-Razorpay-Event-Id", eventID)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func buildRazorpayPayload(t *testing.T, eventType, orderID string) []byte {
	t.Helper()

	var event razorpayEvent
	event.Event = eventType
	event.Payload.Payment.Entity = razorpayPayment{
		ID:    "pay_" + uuid.NewString()[:8],
		Notes: map[string]string{"order_id": orderID},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func signRazorpay(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testRazorpaySecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
