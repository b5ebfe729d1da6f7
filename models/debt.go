package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DebtStatus string

const (
	StatusUnpaid  DebtStatus = "unpaid"
	StatusPartial DebtStatus = "partial"
	StatusPaid    DebtStatus = "paid"
)

const dueDateLayout = "2006-01-02"

func ParseDebtStatus(s string) (DebtStatus, error) {
	switch DebtStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusUnpaid:
		return StatusUnpaid, nil
	case StatusPartial:
		return StatusPartial, nil
	case StatusPaid:
		return StatusPaid, nil
	}
	return "", &ValidationError{Field: "status", Message: "status must be one of unpaid, partial, paid"}
}

type Debt struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Paid        decimal.Decimal `json:"paid"`
	Description string          `json:"description"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Status      DebtStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (d *Debt) Remaining() decimal.Decimal {
	return d.Amount.Sub(d.Paid)
}

// SetStatus moves the debt to status, adjusting Paid so the status and the
// amounts agree. Partial cannot be reached without an amount, see
// ApplyPayment.
func (d *Debt) SetStatus(status DebtStatus) error {
	switch status {
	case StatusPaid:
		d.Paid = d.Amount
	case StatusUnpaid:
		d.Paid = decimal.Zero
	case StatusPartial:
		return ErrPaymentAmountRequired
	default:
		return &ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	d.Status = status
	return nil
}

// ApplyPayment adds amount to Paid. The debt is left untouched when amount is
// not positive or would overpay.
func (d *Debt) ApplyPayment(amount decimal.Decimal) error {
	if err := ValidateAmount("amount", amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "payment must be a positive number"}
	}
	if amount.GreaterThan(d.Remaining()) {
		return &ValidationError{Field: "amount", Message: "payment exceeds the remaining balance of " + d.Remaining().StringFixed(2)}
	}

	d.Paid = d.Paid.Add(amount)
	if d.Paid.GreaterThanOrEqual(d.Amount) {
		d.Status = StatusPaid
	} else {
		d.Status = StatusPartial
	}
	return nil
}

// Reprice changes Amount and re-derives the status from Paid.
func (d *Debt) Reprice(amount decimal.Decimal) error {
	if err := ValidateAmount("amount", amount); err != nil {
		return err
	}
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Message: "amount must not be negative"}
	}
	if amount.LessThan(d.Paid) {
		return &ValidationError{Field: "amount", Message: "amount cannot be lower than the paid total of " + d.Paid.StringFixed(2)}
	}
	d.Amount = amount
	d.Status = deriveStatus(d.Paid, d.Amount)
	return nil
}

func deriveStatus(paid, amount decimal.Decimal) DebtStatus {
	switch {
	case paid.IsZero():
		return StatusUnpaid
	case paid.GreaterThanOrEqual(amount):
		return StatusPaid
	default:
		return StatusPartial
	}
}

// CheckInvariants verifies 0 <= paid <= amount and that the status matches
// the amounts.
func (d *Debt) CheckInvariants() error {
	if d.Amount.IsNegative() || d.Paid.IsNegative() {
		return &ValidationError{Field: "amount", Message: "amounts must not be negative"}
	}
	if d.Paid.GreaterThan(d.Amount) {
		return &ValidationError{Field: "paid", Message: "paid exceeds amount"}
	}
	switch d.Status {
	case StatusPaid:
		if !d.Paid.Equal(d.Amount) {
			return &ValidationError{Field: "status", Message: "paid debt must have paid equal to amount"}
		}
	case StatusUnpaid:
		if !d.Paid.IsZero() {
			return &ValidationError{Field: "status", Message: "unpaid debt must have nothing paid"}
		}
	case StatusPartial:
		if !d.Paid.IsPositive() || !d.Paid.LessThan(d.Amount) {
			return &ValidationError{Field: "status", Message: "partial debt must be strictly between zero and amount"}
		}
	default:
		return &ValidationError{Field: "status", Message: "unknown status " + string(d.Status)}
	}
	return nil
}

// ParseDueDate accepts an empty string (no due date) or a YYYY-MM-DD date.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dueDateLayout, s)
	if err != nil {
		return nil, &ValidationError{Field: "due_date", Message: "due_date must be formatted as YYYY-MM-DD"}
	}
	return &t, nil
}

type Summary struct {
	Total  decimal.Decimal `json:"total"`
	Paid   decimal.Decimal `json:"paid"`
	Unpaid decimal.Decimal `json:"unpaid"`
}

func Summarize(debts []*Debt) Summary {
	total := decimal.Zero
	paid := decimal.Zero
	for _, d := range debts {
		total = total.Add(d.Amount)
		paid = paid.Add(d.Paid)
	}
	return Summary{
		Total:  total,
		Paid:   paid,
		Unpaid: total.Sub(paid),
	}
}
