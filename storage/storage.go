package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"deyn.app/cloud/models"
)

// Storage is the data access boundary for the three tables. Every customer
// and debt query is scoped by the owning user id. Lookups of a missing row
// return (nil, nil).
type Storage interface {
	GetCustomer(ctx context.Context, userID, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context, userID string) ([]*models.Customer, error)
	SaveCustomer(ctx context.Context, customer *models.Customer) error
	DeleteCustomer(ctx context.Context, userID, id string) (bool, error)

	GetDebt(ctx context.Context, userID, id string) (*models.Debt, error)
	ListDebts(ctx context.Context, userID, customerID string) ([]*models.Debt, error)
	ListDebtsByUser(ctx context.Context, userID string) ([]*models.Debt, error)
	SaveDebt(ctx context.Context, debt *models.Debt) error
	// UpdateDebtPayment writes paid and status only while the stored paid
	// still equals previousPaid. It reports false when another write won.
	UpdateDebtPayment(ctx context.Context, debt *models.Debt, previousPaid decimal.Decimal) (bool, error)
	DeleteDebt(ctx context.Context, userID, id string) (bool, error)
	DeleteDebtsByCustomer(ctx context.Context, userID, customerID string) (int, error)

	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error

	Close() error
}

// Open picks a backend from the DATABASE_URL scheme:
// postgres:// or postgresql:// for Postgres, sqlite:// or file: for SQLite
// and memory:// for the in-process store.
func Open(ctx context.Context, databaseURL string) (Storage, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStorage(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStorage(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStorage(databaseURL)
	case databaseURL == "memory://":
		return NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
}

type MemoryStorage struct {
	mu        sync.RWMutex
	Customers map[string]models.Customer
	Debts     map[string]models.Debt
	Profiles  map[string]models.Profile
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Customers: make(map[string]models.Customer),
		Debts:     make(map[string]models.Debt),
		Profiles:  make(map[string]models.Profile),
	}
}

func (m *MemoryStorage) GetCustomer(ctx context.Context, userID, id string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customer, exists := m.Customers[id]
	if !exists || customer.UserID != userID {
		return nil, nil
	}
	return &customer, nil
}

func (m *MemoryStorage) ListCustomers(ctx context.Context, userID string) ([]*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var customers []*models.Customer
	for _, customer := range m.Customers {
		if customer.UserID == userID {
			customerCopy := customer
			customers = append(customers, &customerCopy)
		}
	}

	sort.SliceStable(customers, func(i, j int) bool {
		return customers[i].CreatedAt.After(customers[j].CreatedAt)
	})
	return customers, nil
}

func (m *MemoryStorage) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.Customers[customer.ID]; exists && existing.UserID != customer.UserID {
		return fmt.Errorf("customer %s belongs to another user", customer.ID)
	}
	m.Customers[customer.ID] = *customer
	return nil
}

func (m *MemoryStorage) DeleteCustomer(ctx context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	customer, exists := m.Customers[id]
	if !exists || customer.UserID != userID {
		return false, nil
	}
	delete(m.Customers, id)
	return true, nil
}

func (m *MemoryStorage) GetDebt(ctx context.Context, userID, id string) (*models.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	debt, exists := m.Debts[id]
	if !exists || debt.UserID != userID {
		return nil, nil
	}
	return &debt, nil
}

func (m *MemoryStorage) ListDebts(ctx context.Context, userID, customerID string) ([]*models.Debt, error) {
	return m.listDebts(func(d models.Debt) bool {
		return d.UserID == userID && d.CustomerID == customerID
	}), nil
}

func (m *MemoryStorage) ListDebtsByUser(ctx context.Context, userID string) ([]*models.Debt, error) {
	return m.listDebts(func(d models.Debt) bool {
		return d.UserID == userID
	}), nil
}

func (m *MemoryStorage) listDebts(match func(models.Debt) bool) []*models.Debt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var debts []*models.Debt
	for _, debt := range m.Debts {
		if match(debt) {
			debtCopy := debt
			debts = append(debts, &debtCopy)
		}
	}

	sort.SliceStable(debts, func(i, j int) bool {
		return debts[i].CreatedAt.After(debts[j].CreatedAt)
	})
	return debts
}

func (m *MemoryStorage) SaveDebt(ctx context.Context, debt *models.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.Debts[debt.ID]; exists && existing.UserID != debt.UserID {
		return fmt.Errorf("debt %s belongs to another user", debt.ID)
	}
	m.Debts[debt.ID] = *debt
	return nil
}

func (m *MemoryStorage) UpdateDebtPayment(ctx context.Context, debt *models.Debt, previousPaid decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.Debts[debt.ID]
	if !exists || existing.UserID != debt.UserID || !existing.Paid.Equal(previousPaid) {
		return false, nil
	}
	existing.Paid = debt.Paid
	existing.Status = debt.Status
	existing.UpdatedAt = debt.UpdatedAt
	m.Debts[debt.ID] = existing
	return true, nil
}

func (m *MemoryStorage) DeleteDebt(ctx context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	debt, exists := m.Debts[id]
	if !exists || debt.UserID != userID {
		return false, nil
	}
	delete(m.Debts, id)
	return true, nil
}

func (m *MemoryStorage) DeleteDebtsByCustomer(ctx context.Context, userID, customerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, debt := range m.Debts {
		if debt.UserID == userID && debt.CustomerID == customerID {
			delete(m.Debts, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, exists := m.Profiles[id]
	if !exists {
		return nil, nil
	}
	return &profile, nil
}

func (m *MemoryStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Profiles[profile.ID] = *profile
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
