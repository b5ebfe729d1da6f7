package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"deyn.app/cloud/internal/logger"
)

const DefaultCurrency = "usd"

// StripeGateway creates a PaymentIntent per charge. Intents that do not
// settle immediately are completed by the payment_intent.succeeded webhook.
type StripeGateway struct {
	api      *client.API
	currency string
}

// NewStripeGateway builds a gateway for secretKey. backends may be nil to
// use the live Stripe API.
func NewStripeGateway(secretKey, currency string, backends *stripe.Backends) *StripeGateway {
	if currency == "" {
		currency = DefaultCurrency
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{
		api:      api,
		currency: strings.ToLower(currency),
	}
}

func (g *StripeGateway) Charge(ctx context.Context, charge Charge) (*Receipt, error) {
	if err := charge.Validate(); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(MinorUnits(charge)),
		Currency:    stripe.String(g.currency),
		Description: stripe.String("Deyn subscription"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", charge.UserID)
	params.AddMetadata("phone", charge.Phone)
	params.SetIdempotencyKey("evc-" + xid.New().String())

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		logger.Error("Stripe payment intent failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": charge.UserID,
		})
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	settled := intent.Status == stripe.PaymentIntentStatusSucceeded
	logger.Info("Stripe payment intent created", map[string]interface{}{
		"intent_id": intent.ID,
		"status":    string(intent.Status),
		"user_id":   charge.UserID,
	})

	message := fmt.Sprintf("Payment of $%s from %s processed successfully.", charge.Amount.String(), charge.Phone)
	if !settled {
		message = "Payment submitted, waiting for confirmation."
	}
	return &Receipt{
		TransactionID: intent.ID,
		Message:       message,
		Settled:       settled,
	}, nil
}

// MinorUnits converts the charge amount to cents, rounding half away from
// zero.
func MinorUnits(charge Charge) int64 {
	return charge.Amount.Shift(2).Round(0).IntPart()
}
