package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"deyn.app/cloud/models"
)

// PostgresStorage talks to the hosted Postgres database through a pgx pool.
// Numeric columns travel as text so decimal values keep their exact scale.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

const (
	pgCustomerColumns = `id, user_id, name, phone, created_at, updated_at`
	pgDebtColumns     = `id, customer_id, user_id, amount::text, paid::text, description, due_date, status, created_at, updated_at`
)

func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	if err := migratePostgres(databaseURL); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) GetCustomer(ctx context.Context, userID, id string) (*models.Customer, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pgCustomerColumns+` FROM customers WHERE id = $1 AND user_id = $2`, id, userID)

	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (p *PostgresStorage) ListCustomers(ctx context.Context, userID string) ([]*models.Customer, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgCustomerColumns+` FROM customers WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return customers, nil
}

func (p *PostgresStorage) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO customers (`+pgCustomerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			updated_at = EXCLUDED.updated_at
		WHERE customers.user_id = EXCLUDED.user_id
	`, customer.ID, customer.UserID, customer.Name, customer.Phone, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func (p *PostgresStorage) DeleteCustomer(ctx context.Context, userID, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete customer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStorage) GetDebt(ctx context.Context, userID, id string) (*models.Debt, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pgDebtColumns+` FROM debts WHERE id = $1 AND user_id = $2`, id, userID)

	debt, err := scanPgDebt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return debt, nil
}

func (p *PostgresStorage) ListDebts(ctx context.Context, userID, customerID string) ([]*models.Debt, error) {
	return p.queryDebts(ctx, `SELECT `+pgDebtColumns+` FROM debts WHERE user_id = $1 AND customer_id = $2 ORDER BY created_at DESC`, userID, customerID)
}

func (p *PostgresStorage) ListDebtsByUser(ctx context.Context, userID string) ([]*models.Debt, error) {
	return p.queryDebts(ctx, `SELECT `+pgDebtColumns+` FROM debts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (p *PostgresStorage) queryDebts(ctx context.Context, query string, args ...any) ([]*models.Debt, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []*models.Debt
	for rows.Next() {
		debt, err := scanPgDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating debts: %w", err)
	}
	return debts, nil
}

func (p *PostgresStorage) SaveDebt(ctx context.Context, debt *models.Debt) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO debts (id, customer_id, user_id, amount, paid, description, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			paid = EXCLUDED.paid,
			description = EXCLUDED.description,
			due_date = EXCLUDED.due_date,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE debts.user_id = EXCLUDED.user_id
	`,
		debt.ID,
		debt.CustomerID,
		debt.UserID,
		debt.Amount.String(),
		debt.Paid.String(),
		debt.Description,
		debt.DueDate,
		string(debt.Status),
		debt.CreatedAt,
		debt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save debt: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UpdateDebtPayment(ctx context.Context, debt *models.Debt, previousPaid decimal.Decimal) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE debts SET paid = $1::numeric, status = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5 AND paid = $6::numeric
	`,
		debt.Paid.String(),
		string(debt.Status),
		debt.UpdatedAt,
		debt.ID,
		debt.UserID,
		previousPaid.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update debt payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStorage) DeleteDebt(ctx context.Context, userID, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM debts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete debt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStorage) DeleteDebtsByCustomer(ctx context.Context, userID, customerID string) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM debts WHERE customer_id = $1 AND user_id = $2`, customerID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete debts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := p.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.IsSubscribed,
		&profile.TrialStartsAt,
		&profile.TrialEndsAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
		&profile.LastTransactionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *PostgresStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			is_subscribed = EXCLUDED.is_subscribed,
			trial_ends_at = EXCLUDED.trial_ends_at,
			updated_at = EXCLUDED.updated_at,
			last_transaction_id = EXCLUDED.last_transaction_id
	`,
		profile.ID,
		profile.Email,
		profile.IsSubscribed,
		profile.TrialStartsAt,
		profile.TrialEndsAt,
		profile.CreatedAt,
		profile.UpdatedAt,
		profile.LastTransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func scanPgDebt(row pgx.Row) (*models.Debt, error) {
	var (
		debt         models.Debt
		amount, paid string
		dueDate      *time.Time
		status       string
	)
	err := row.Scan(
		&debt.ID,
		&debt.CustomerID,
		&debt.UserID,
		&amount,
		&paid,
		&debt.Description,
		&dueDate,
		&status,
		&debt.CreatedAt,
		&debt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if debt.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if debt.Paid, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("invalid paid %q: %w", paid, err)
	}
	debt.DueDate = dueDate
	debt.Status = models.DebtStatus(status)
	return &debt, nil
}
