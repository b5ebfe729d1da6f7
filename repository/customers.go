package repository

import (
	"context"
	"strings"

	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
	"deyn.app/cloud/storage"
)

type CustomerRepository struct {
	store storage.Storage
	opts  Options
	// cascade removes a customer's debts together with the customer.
	cascade bool
}

func NewCustomerRepository(store storage.Storage, cascadeDelete bool, opts Options) *CustomerRepository {
	return &CustomerRepository{
		store:   store,
		opts:    opts.withDefaults(),
		cascade: cascadeDelete,
	}
}

func (r *CustomerRepository) Create(ctx context.Context, session models.Session, name, phone string) (*models.Customer, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	now := r.opts.Now().UTC()
	customer := &models.Customer{
		ID:        r.opts.NewID(),
		UserID:    session.UserID,
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	if err := r.store.SaveCustomer(ctx, customer); err != nil {
		return nil, remote("create customer", err)
	}

	logger.Info("Customer created", map[string]interface{}{
		"customer_id": customer.ID,
		"user_id":     session.UserID,
	})
	return customer, nil
}

// List returns the caller's customers, newest first. A session without a
// user yields an empty list.
func (r *CustomerRepository) List(ctx context.Context, session models.Session) ([]*models.Customer, error) {
	if !session.Valid() {
		return []*models.Customer{}, nil
	}

	customers, err := r.store.ListCustomers(ctx, session.UserID)
	if err != nil {
		return nil, remote("list customers", err)
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	return customers, nil
}

func (r *CustomerRepository) Get(ctx context.Context, session models.Session, id string) (*models.Customer, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	customer, err := r.store.GetCustomer(ctx, session.UserID, id)
	if err != nil {
		return nil, remote("get customer", err)
	}
	if customer == nil {
		return nil, &models.NotFoundError{Resource: "customer", ID: id}
	}
	return customer, nil
}

func (r *CustomerRepository) Update(ctx context.Context, session models.Session, id string, update models.CustomerUpdate) (*models.Customer, error) {
	customer, err := r.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		customer.Name = strings.TrimSpace(*update.Name)
	}
	if update.Phone != nil {
		customer.Phone = strings.TrimSpace(*update.Phone)
	}
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	customer.UpdatedAt = r.opts.Now().UTC()

	if err := r.store.SaveCustomer(ctx, customer); err != nil {
		return nil, remote("update customer", err)
	}
	return customer, nil
}

// Delete removes the customer. Deleting a missing customer is not an error.
// Unless cascading is enabled the customer's debts are kept and stay
// reachable by customer id only.
func (r *CustomerRepository) Delete(ctx context.Context, session models.Session, id string) error {
	if err := requireSession(session); err != nil {
		return err
	}

	if r.cascade {
		removed, err := r.store.DeleteDebtsByCustomer(ctx, session.UserID, id)
		if err != nil {
			return remote("delete customer debts", err)
		}
		logger.Debug("Customer debts removed", map[string]interface{}{
			"customer_id": id,
			"debts":       removed,
		})
	}

	deleted, err := r.store.DeleteCustomer(ctx, session.UserID, id)
	if err != nil {
		return remote("delete customer", err)
	}
	if deleted {
		logger.Info("Customer deleted", map[string]interface{}{
			"customer_id": id,
			"user_id":     session.UserID,
			"cascade":     r.cascade,
		})
	}
	return nil
}

// Search filters the full customer list in memory: case-insensitive match on
// the name or a plain substring match on the phone.
func (r *CustomerRepository) Search(ctx context.Context, session models.Session, term string) ([]*models.Customer, error) {
	customers, err := r.List(ctx, session)
	if err != nil {
		return nil, err
	}

	term = strings.TrimSpace(term)
	if term == "" {
		return customers, nil
	}

	matches := make([]*models.Customer, 0, len(customers))
	for _, c := range customers {
		if c.Matches(term) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}
