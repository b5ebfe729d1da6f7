package repository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
	"deyn.app/cloud/storage"
)

type DebtRepository struct {
	store storage.Storage
	opts  Options
}

func NewDebtRepository(store storage.Storage, opts Options) *DebtRepository {
	return &DebtRepository{
		store: store,
		opts:  opts.withDefaults(),
	}
}

// Create attaches a new unpaid debt to one of the caller's customers.
func (r *DebtRepository) Create(ctx context.Context, session models.Session, customerID string, amount decimal.Decimal, description string, dueDate *time.Time) (*models.Debt, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := models.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, &models.ValidationError{Field: "amount", Message: "amount must not be negative"}
	}

	customer, err := r.store.GetCustomer(ctx, session.UserID, customerID)
	if err != nil {
		return nil, remote("get customer", err)
	}
	if customer == nil {
		return nil, &models.NotFoundError{Resource: "customer", ID: customerID}
	}

	now := r.opts.Now().UTC()
	debt := &models.Debt{
		ID:          r.opts.NewID(),
		CustomerID:  customer.ID,
		UserID:      session.UserID,
		Amount:      amount,
		Paid:        decimal.Zero,
		Description: strings.TrimSpace(description),
		DueDate:     dueDate,
		Status:      models.StatusUnpaid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.store.SaveDebt(ctx, debt); err != nil {
		return nil, remote("create debt", err)
	}

	logger.Info("Debt created", map[string]interface{}{
		"debt_id":     debt.ID,
		"customer_id": customer.ID,
		"amount":      debt.Amount.String(),
	})
	return debt, nil
}

func (r *DebtRepository) List(ctx context.Context, session models.Session, customerID string) ([]*models.Debt, error) {
	if !session.Valid() {
		return []*models.Debt{}, nil
	}

	debts, err := r.store.ListDebts(ctx, session.UserID, customerID)
	if err != nil {
		return nil, remote("list debts", err)
	}
	if debts == nil {
		debts = []*models.Debt{}
	}
	return debts, nil
}

// ListAll returns every debt the caller owns, across customers.
func (r *DebtRepository) ListAll(ctx context.Context, session models.Session) ([]*models.Debt, error) {
	if !session.Valid() {
		return []*models.Debt{}, nil
	}

	debts, err := r.store.ListDebtsByUser(ctx, session.UserID)
	if err != nil {
		return nil, remote("list debts", err)
	}
	if debts == nil {
		debts = []*models.Debt{}
	}
	return debts, nil
}

func (r *DebtRepository) Get(ctx context.Context, session models.Session, id string) (*models.Debt, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	debt, err := r.store.GetDebt(ctx, session.UserID, id)
	if err != nil {
		return nil, remote("get debt", err)
	}
	if debt == nil {
		return nil, &models.NotFoundError{Resource: "debt", ID: id}
	}
	return debt, nil
}

// UpdateFields edits amount and description. An amount below what has
// already been paid is rejected and the status follows the new amount.
func (r *DebtRepository) UpdateFields(ctx context.Context, session models.Session, id string, amount decimal.Decimal, description string) (*models.Debt, error) {
	debt, err := r.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}

	if err := debt.Reprice(amount); err != nil {
		return nil, err
	}
	debt.Description = strings.TrimSpace(description)

	return r.save(ctx, debt, "update debt")
}

// SetStatus moves a debt to paid or unpaid. Partial is never persisted here:
// it returns models.ErrPaymentAmountRequired and the caller follows up with
// ApplyPartialPayment.
func (r *DebtRepository) SetStatus(ctx context.Context, session models.Session, id string, status models.DebtStatus) (*models.Debt, error) {
	debt, err := r.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}

	if err := debt.SetStatus(status); err != nil {
		return nil, err
	}

	return r.save(ctx, debt, "set debt status")
}

// ApplyPartialPayment adds a payment to the debt. The write only lands if no
// other payment changed paid since the read; otherwise a ConflictError is
// returned and the stored record is left as the other writer saved it.
func (r *DebtRepository) ApplyPartialPayment(ctx context.Context, session models.Session, id string, amountPaidNow decimal.Decimal) (*models.Debt, error) {
	debt, err := r.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}

	previousPaid := debt.Paid
	if err := debt.ApplyPayment(amountPaidNow); err != nil {
		return nil, err
	}
	if err := debt.CheckInvariants(); err != nil {
		return nil, err
	}
	debt.UpdatedAt = r.opts.Now().UTC()

	updated, err := r.store.UpdateDebtPayment(ctx, debt, previousPaid)
	if err != nil {
		return nil, remote("apply payment", err)
	}
	if !updated {
		logger.Warn("Concurrent payment on debt", map[string]interface{}{
			"debt_id": debt.ID,
			"amount":  amountPaidNow.String(),
		})
		return nil, &models.ConflictError{Resource: "debt", ID: debt.ID}
	}

	logger.Info("Payment applied to debt", map[string]interface{}{
		"debt_id": debt.ID,
		"amount":  amountPaidNow.String(),
		"paid":    debt.Paid.String(),
		"status":  string(debt.Status),
	})
	return debt, nil
}

// Delete removes one of the caller's debts. Missing debts are ignored.
func (r *DebtRepository) Delete(ctx context.Context, session models.Session, id string) error {
	if err := requireSession(session); err != nil {
		return err
	}

	if _, err := r.store.DeleteDebt(ctx, session.UserID, id); err != nil {
		return remote("delete debt", err)
	}
	return nil
}

func (r *DebtRepository) Summarize(debts []*models.Debt) models.Summary {
	return models.Summarize(debts)
}

// save writes paid, status and the edited fields in one storage call.
func (r *DebtRepository) save(ctx context.Context, debt *models.Debt, op string) (*models.Debt, error) {
	if err := debt.CheckInvariants(); err != nil {
		return nil, err
	}
	debt.UpdatedAt = r.opts.Now().UTC()

	if err := r.store.SaveDebt(ctx, debt); err != nil {
		return nil, remote(op, err)
	}
	return debt, nil
}
