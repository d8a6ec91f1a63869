package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	paymentsvc "github.com/freshkart/freshkart-backend/internal/payments"
	"github.com/freshkart/freshkart-backend/pkg/db/models"
	pkgerrors "github.com/freshkart/freshkart-backend/pkg/errors"
)

const testSigningSecret = "whsec_test"

func TestStripeWebhookAppliesPayment(t *testing.T) {
	orderID := uuid.New()
	payload, header := buildSignedEvent(t, "payment_intent.succeeded", orderID.String())
	rec := &fakeReconciler{}
	guard := paymentsvc.NewEventGuard(newInMemoryStore(), time.Minute)
	handler := StripeWebhook(rec, testSigningSecret, guard, nil, nil)

	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if rec.applyCalls != 1 {
		t.Fatalf("expected one apply call, got %d", rec.applyCalls)
	}
	if rec.lastEvent.OrderID != orderID || rec.lastEvent.Source != "stripe" {
		t.Fatalf("unexpected event: %+v", rec.lastEvent)
	}
}

func TestStripeWebhookDuplicateDelivery(t *testing.T) {
	payload, header := buildSignedEvent(t, "payment_intent.succeeded", uuid.NewString())
	rec := &fakeReconciler{}
	guard := paymentsvc.NewEventGuard(newInMemoryStore(), time.Minute)
	handler := StripeWebhook(rec, testSigningSecret, guard, nil, nil)

	if res := serveStripe(handler, payload, header); res.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", res.Code)
	}
	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", res.Code)
	}
	if rec.applyCalls != 1 {
		t.Fatalf("expected duplicate to skip the reconciler, got %d calls", rec.applyCalls)
	}
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t, "payment_intent.succeeded", uuid.NewString())
	rec := &fakeReconciler{}
	handler := StripeWebhook(rec, testSigningSecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveStripe(handler, payload, "t=1,v1=bogus")
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if rec.applyCalls != 0 {
		t.Fatal("reconciler must not run on a bad signature")
	}
}

func TestStripeWebhookUnknownOrderIsAcknowledged(t *testing.T) {
	payload, header := buildSignedEvent(t, "payment_intent.succeeded", uuid.NewString())
	rec := &fakeReconciler{applyErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	handler := StripeWebhook(rec, testSigningSecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d (%s)", res.Code, res.Body.String())
	}
}

func TestStripeWebhookStorageFailureIsRetryable(t *testing.T) {
	payload, header := buildSignedEvent(t, "payment_intent.succeeded", uuid.NewString())
	rec := &fakeReconciler{applyErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	store := newInMemoryStore()
	guard := paymentsvc.NewEventGuard(store, time.Minute)
	handler := StripeWebhook(rec, testSigningSecret, guard, nil, nil)

	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}

	// The failed event's claim must be released so Stripe's retry can land.
	rec.applyErr = nil
	res = serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", res.Code)
	}
	if rec.applyCalls != 2 {
		t.Fatalf("expected two apply attempts, got %d", rec.applyCalls)
	}
}

func TestStripeWebhookMissingOrderMetadata(t *testing.T) {
	payload, header := buildSignedEvent(t, "payment_intent.succeeded", "")
	rec := &fakeReconciler{}
	handler := StripeWebhook(rec, testSigningSecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", res.Code)
	}
	if rec.applyCalls != 0 {
		t.Fatal("reconciler must not run without an order id")
	}
}

func TestStripeWebhookFailureEventMarksFailed(t *testing.T) {
	orderID := uuid.New()
	payload, header := buildSignedEvent(t, "payment_intent.payment_failed", orderID.String())
	rec := &fakeReconciler{}
	handler := StripeWebhook(rec, testSigningSecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if rec.failCalls != 1 || rec.applyCalls != 0 {
		t.Fatalf("expected one mark-failed call, got apply=%d fail=%d", rec.applyCalls, rec.failCalls)
	}
}

func TestStripeWebhookIgnoresUnrelatedEvents(t *testing.T) {
	payload, header := buildSignedEvent(t, "charge.refunded", uuid.NewString())
	rec := &fakeReconciler{}
	handler := StripeWebhook(rec, testSigningSecret, paymentsvc.NewEventGuard(nil, 0), nil, nil)

	res := serveStripe(handler, payload, header)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if rec.applyCalls != 0 || rec.failCalls != 0 {
		t.Fatal("unrelated events must not reach the reconciler")
	}
}

func serveStripe(handler http.HandlerFunc, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func buildSignedEvent(t *testing.T, eventType, orderID string) ([]byte, string) {
	t.Helper()

	intent := &stripe.PaymentIntent{
		ID:       "pi_" + uuid.NewString()[:8],
		Metadata: map[string]string{},
	}
	if orderID != "" {
		intent.Metadata["order_id"] = orderID
	}
	rawIntent, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}

	event := &stripe.Event{
		APIVersion: stripe.APIVersion,
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventType(eventType),
		Object:     "event",
		Data: &stripe.EventData{
			Raw: rawIntent,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, buildStripeSignatureHeader(payload, testSigningSecret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeReconciler struct {
	applyCalls int
	failCalls  int
	applyErr   error
	failErr    error
	lastEvent  paymentsvc.PaymentEvent
}

func (f *fakeReconciler) Apply(_ context.Context, event paymentsvc.PaymentEvent) (bool, error) {
	f.applyCalls++
	f.lastEvent = event
	if f.applyErr != nil {
		return false, f.applyErr
	}
	return true, nil
}

func (f *fakeReconciler) MarkFailed(_ context.Context, event paymentsvc.PaymentEvent) (bool, error) {
	f.failCalls++
	f.lastEvent = event
	if f.failErr != nil {
		return false, f.failErr
	}
	return true, nil
}

func (f *fakeReconciler) ConfirmManual(_ context.Context, _, _ uuid.UUID, _ string) (*models.Order, error) {
	return nil, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return "fk:idem:" + scope + ":" + id
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
