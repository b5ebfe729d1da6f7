package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"deyn.app/cloud/internal/logger"
)

// StripeWebhook completes payments that did not settle synchronously.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.Header.Get("User-Agent"),
	})

	if s.opts.StripeWebhookSecret == "" {
		logger.Error("Stripe webhook secret not configured")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.opts.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Error("Webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger.Info("Stripe event parsed", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			logger.Error("Failed to unmarshal payment intent", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		userID := intent.Metadata["user_id"]
		if userID == "" {
			logger.Warn("Payment intent without user_id metadata", map[string]interface{}{
				"intent_id": intent.ID,
			})
			break
		}

		profile, applied, err := s.Profiles.Subscribe(ctx, userID, intent.ID)
		if err != nil {
			logger.Error("Failed to activate subscription", map[string]interface{}{
				"error":     err.Error(),
				"intent_id": intent.ID,
				"user_id":   userID,
			})
			s.captureError(r, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if applied {
			amount := decimal.New(intent.Amount, -2).String()
			s.sendReceipt(ctx, profile.Email, intent.ID, amount, profile.TrialEndsAt)
		}
	default:
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
