// Package payment charges a customer's phone wallet for the subscription.
// Callers depend on Processor only, so the stub and a real gateway can be
// swapped through configuration.
package payment

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"deyn.app/cloud/models"
)

type Processor interface {
	Charge(ctx context.Context, charge Charge) (*Receipt, error)
}

type Charge struct {
	Phone  string
	Amount decimal.Decimal
	UserID string
}

// Receipt is returned for every accepted charge. Settled is false when the
// provider finishes the payment asynchronously.
type Receipt struct {
	TransactionID string
	Message       string
	Settled       bool
}

var ErrMissingFields = &models.ValidationError{Message: "Phone, amount, and userId are required."}

// Validate trims the charge in place. A zero or negative amount counts as
// missing.
func (c *Charge) Validate() error {
	c.Phone = strings.TrimSpace(c.Phone)
	c.UserID = strings.TrimSpace(c.UserID)
	if c.Phone == "" || c.UserID == "" || !c.Amount.IsPositive() {
		return ErrMissingFields
	}
	return models.ValidateAmount("amount", c.Amount)
}
