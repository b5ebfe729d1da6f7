package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
)

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	customerColumns = `id, user_id, name, phone, created_at, updated_at`
	debtColumns     = `id, customer_id, user_id, amount, paid, description, due_date, status, created_at, updated_at`
	profileColumns  = `id, email, is_subscribed, trial_starts_at, trial_ends_at, created_at, updated_at, last_transaction_id`
)

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writers serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: path,
	}, nil
}

func (s *SQLiteStorage) GetCustomer(ctx context.Context, userID, id string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = ? AND user_id = ?`

	customer, err := scanCustomer(s.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *SQLiteStorage) ListCustomers(ctx context.Context, userID string) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer closeRows(rows)

	var customers []*models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return customers, nil
}

func (s *SQLiteStorage) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	query := `INSERT INTO customers (` + customerColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			updated_at = excluded.updated_at
		WHERE customers.user_id = excluded.user_id`

	_, err := s.db.ExecContext(ctx, query,
		customer.ID,
		customer.UserID,
		customer.Name,
		customer.Phone,
		customer.CreatedAt.UTC(),
		customer.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteCustomer(ctx context.Context, userID, id string) (bool, error) {
	return s.deleteWhere(ctx, `DELETE FROM customers WHERE id = ? AND user_id = ?`, id, userID)
}

func (s *SQLiteStorage) GetDebt(ctx context.Context, userID, id string) (*models.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE id = ? AND user_id = ?`

	debt, err := scanDebt(s.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return debt, nil
}

func (s *SQLiteStorage) ListDebts(ctx context.Context, userID, customerID string) ([]*models.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE user_id = ? AND customer_id = ? ORDER BY created_at DESC`
	return s.queryDebts(ctx, query, userID, customerID)
}

func (s *SQLiteStorage) ListDebtsByUser(ctx context.Context, userID string) ([]*models.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE user_id = ? ORDER BY created_at DESC`
	return s.queryDebts(ctx, query, userID)
}

func (s *SQLiteStorage) queryDebts(ctx context.Context, query string, args ...any) ([]*models.Debt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer closeRows(rows)

	var debts []*models.Debt
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, debt)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating debts: %w", err)
	}
	return debts, nil
}

func (s *SQLiteStorage) SaveDebt(ctx context.Context, debt *models.Debt) error {
	query := `INSERT INTO debts (` + debtColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			paid = excluded.paid,
			description = excluded.description,
			due_date = excluded.due_date,
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE debts.user_id = excluded.user_id`

	_, err := s.db.ExecContext(ctx, query,
		debt.ID,
		debt.CustomerID,
		debt.UserID,
		debt.Amount.String(),
		debt.Paid.String(),
		debt.Description,
		nullTime(debt.DueDate),
		string(debt.Status),
		debt.CreatedAt.UTC(),
		debt.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save debt: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateDebtPayment(ctx context.Context, debt *models.Debt, previousPaid decimal.Decimal) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE debts SET paid = ?, status = ?, updated_at = ? WHERE id = ? AND user_id = ? AND paid = ?`,
		debt.Paid.String(),
		string(debt.Status),
		debt.UpdatedAt.UTC(),
		debt.ID,
		debt.UserID,
		previousPaid.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update debt payment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) DeleteDebt(ctx context.Context, userID, id string) (bool, error) {
	return s.deleteWhere(ctx, `DELETE FROM debts WHERE id = ? AND user_id = ?`, id, userID)
}

func (s *SQLiteStorage) DeleteDebtsByCustomer(ctx context.Context, userID, customerID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM debts WHERE customer_id = ? AND user_id = ?`, customerID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete debts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`

	var profile models.Profile
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.IsSubscribed,
		&profile.TrialStartsAt,
		&profile.TrialEndsAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
		&profile.LastTransactionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *SQLiteStorage) SaveProfile(ctx context.Context, profile *models.Profile) error {
	query := `INSERT INTO profiles (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			is_subscribed = excluded.is_subscribed,
			trial_ends_at = excluded.trial_ends_at,
			updated_at = excluded.updated_at,
			last_transaction_id = excluded.last_transaction_id`

	_, err := s.db.ExecContext(ctx, query,
		profile.ID,
		profile.Email,
		profile.IsSubscribed,
		profile.TrialStartsAt.UTC(),
		profile.TrialEndsAt.UTC(),
		profile.CreatedAt.UTC(),
		profile.UpdatedAt.UTC(),
		profile.LastTransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) deleteWhere(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var customer models.Customer
	err := row.Scan(
		&customer.ID,
		&customer.UserID,
		&customer.Name,
		&customer.Phone,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func scanDebt(row rowScanner) (*models.Debt, error) {
	var (
		debt    models.Debt
		dueDate sql.NullTime
		status  string
	)
	err := row.Scan(
		&debt.ID,
		&debt.CustomerID,
		&debt.UserID,
		&debt.Amount,
		&debt.Paid,
		&debt.Description,
		&dueDate,
		&status,
		&debt.CreatedAt,
		&debt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		due := dueDate.Time
		debt.DueDate = &due
	}
	debt.Status = models.DebtStatus(status)
	return &debt, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.Warn("Failed to close rows", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
