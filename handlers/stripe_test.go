package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"deyn.app/cloud/models"
	"deyn.app/cloud/payment"
)

const testWebhookSecret = "whsec_test_secret"

func createMockStripeEvent(eventType string, object map[string]interface{}) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":     "evt_test123",
		"object": "event",
		"type":   eventType,
		"data": map[string]interface{}{
			"object": object,
		},
	})
	return payload
}

func createMockPaymentIntent(userID string) map[string]interface{} {
	return map[string]interface{}{
		"id":       "pi_test123",
		"object":   "payment_intent",
		"amount":   999,
		"currency": "usd",
		"status":   "succeeded",
		"metadata": map[string]interface{}{
			"user_id": userID,
			"phone":   "615551234",
		},
	}
}

func signedWebhookRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhook_PaymentIntentSucceeded(t *testing.T) {
	env := newTestEnv(t, Options{StripeWebhookSecret: testWebhookSecret})

	trial := models.NewTrialProfile("user-1", "owner@shop.so", time.Now().Add(-30*24*time.Hour), 14)
	if err := env.store.SaveProfile(context.Background(), trial); err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}

	payload := createMockStripeEvent("payment_intent.succeeded", createMockPaymentIntent("user-1"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusOK)

	profile, _ := env.store.GetProfile(context.Background(), "user-1")
	if profile == nil || !profile.IsSubscribed {
		t.Fatalf("Expected subscribed profile, got %+v", profile)
	}
	if len(env.mailer.sent) != 1 || env.mailer.sent[0] != "owner@shop.so" {
		t.Errorf("Expected receipt to owner@shop.so, got %v", env.mailer.sent)
	}
}

func TestStripeWebhook_RedeliveryIsIgnored(t *testing.T) {
	env := newTestEnv(t, Options{StripeWebhookSecret: testWebhookSecret})

	trial := models.NewTrialProfile("user-1", "owner@shop.so", time.Now(), 14)
	if err := env.store.SaveProfile(context.Background(), trial); err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}

	payload := createMockStripeEvent("payment_intent.succeeded", createMockPaymentIntent("user-1"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusOK)

	first, _ := env.store.GetProfile(context.Background(), "user-1")
	if first == nil || first.LastTransactionID != "pi_test123" {
		t.Fatalf("Expected pi_test123 to be recorded, got %+v", first)
	}

	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusOK)

	second, _ := env.store.GetProfile(context.Background(), "user-1")
	if !second.TrialEndsAt.Equal(first.TrialEndsAt) {
		t.Errorf("Expected redelivery to keep %v, got %v", first.TrialEndsAt, second.TrialEndsAt)
	}
	if len(env.mailer.sent) != 1 {
		t.Errorf("Expected one receipt, got %v", env.mailer.sent)
	}
}

func TestStripeWebhook_AfterSynchronousSettlement(t *testing.T) {
	env := newTestEnv(t, Options{StripeWebhookSecret: testWebhookSecret})
	env.server.Payments = failingProcessor{receipt: &payment.Receipt{
		TransactionID: "pi_test123",
		Message:       "Payment of $9.99 from 615551234 processed successfully.",
		Settled:       true,
	}}

	w := env.do(t, http.MethodPost, "/api/evc-payment", "user-1", map[string]interface{}{
		"phone": "615551234", "amount": "9.99", "userId": "user-1",
	})
	expectStatus(t, w, http.StatusOK)

	settled, _ := env.store.GetProfile(context.Background(), "user-1")
	if settled == nil || !settled.IsSubscribed {
		t.Fatalf("Expected subscribed profile, got %+v", settled)
	}

	payload := createMockStripeEvent("payment_intent.succeeded", createMockPaymentIntent("user-1"))
	w = httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusOK)

	after, _ := env.store.GetProfile(context.Background(), "user-1")
	if !after.TrialEndsAt.Equal(settled.TrialEndsAt) {
		t.Errorf("Expected webhook to keep %v, got %v", settled.TrialEndsAt, after.TrialEndsAt)
	}
	if len(env.mailer.sent) != 1 {
		t.Errorf("Expected a single receipt, got %v", env.mailer.sent)
	}
}

func TestStripeWebhook_MissingUserMetadata(t *testing.T) {
	env := newTestEnv(t, Options{StripeWebhookSecret: testWebhookSecret})

	payload := createMockStripeEvent("payment_intent.succeeded", createMockPaymentIntent(""))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusOK)

	if len(env.store.Profiles) != 0 {
		t.Errorf("Expected no profiles, got %d", len(env.store.Profiles))
	}
}

func TestStripeWebhook_UnhandledEvent(t *testing.T) {
	env := newTestEnv(t, Options{StripeWebhookSecret: testWebhookSecret})

	payload := createMockStripeEvent("payment_intent.created", createMockPaymentIntent("user-1"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusOK)

	if profile, _ := env.store.GetProfile(context.Background(), "user-1"); profile != nil {
		t.Error("Expected unhandled event to leave profiles alone")
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t, Options{StripeWebhookSecret: testWebhookSecret})

	payload := createMockStripeEvent("payment_intent.succeeded", createMockPaymentIntent("user-1"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, "whsec_wrong"))
	expectStatus(t, w, http.StatusBadRequest)

	if profile, _ := env.store.GetProfile(context.Background(), "user-1"); profile != nil {
		t.Error("Expected no subscription from an unsigned event")
	}
}

func TestStripeWebhook_NotConfigured(t *testing.T) {
	env := newTestEnv(t, Options{})

	payload := createMockStripeEvent("payment_intent.succeeded", createMockPaymentIntent("user-1"))
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, signedWebhookRequest(t, payload, testWebhookSecret))
	expectStatus(t, w, http.StatusServiceUnavailable)
}
