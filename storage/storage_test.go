package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"deyn.app/cloud/models"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Test helper to create test customer
func createTestCustomer(id, userID string, offset time.Duration) models.Customer {
	return models.Customer{
		ID:        id,
		UserID:    userID,
		Name:      "Customer " + id,
		Phone:     "61" + id,
		CreatedAt: baseTime.Add(offset),
		UpdatedAt: baseTime.Add(offset),
	}
}

// Test helper to create test debt
func createTestDebt(id, customerID, userID string, offset time.Duration) models.Debt {
	return models.Debt{
		ID:          id,
		CustomerID:  customerID,
		UserID:      userID,
		Amount:      decimal.RequireFromString("100.50"),
		Paid:        decimal.Zero,
		Description: "rice and sugar",
		Status:      models.StatusUnpaid,
		CreatedAt:   baseTime.Add(offset),
		UpdatedAt:   baseTime.Add(offset),
	}
}

func TestMemoryStorage(t *testing.T) {
	runStorageSuite(t, NewMemoryStorage())
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	defer s.Close()

	runStorageSuite(t, s)
}

func TestSQLiteStorage_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	first, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	customer := createTestCustomer("c1", "user-a", 0)
	if err := first.SaveCustomer(context.Background(), &customer); err != nil {
		t.Fatalf("Failed to save customer: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Expected reopening to succeed, got %v", err)
	}
	defer second.Close()

	found, err := second.GetCustomer(context.Background(), "user-a", "c1")
	if err != nil || found == nil {
		t.Fatalf("Expected customer to survive reopen, got %v, %v", found, err)
	}
}

func TestPostgresStorage(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStorage(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("Failed to create Postgres storage: %v", err)
	}
	defer s.Close()

	runStorageSuite(t, s)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{"memory", "memory://", false},
		{"sqlite scheme", "sqlite://" + filepath.Join(t.TempDir(), "open.db"), false},
		{"unknown scheme", "mysql://localhost/deyn", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.url)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for %q", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			s.Close()
		})
	}
}

func TestPgx5URL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/deyn":   "pgx5://u:p@localhost:5432/deyn",
		"postgresql://u:p@localhost:5432/deyn": "pgx5://u:p@localhost:5432/deyn",
		"pgx5://already":                       "pgx5://already",
	}
	for in, expected := range tests {
		if got := pgx5URL(in); got != expected {
			t.Errorf("Expected %s, got %s", expected, got)
		}
	}
}

func runStorageSuite(t *testing.T, s Storage) {
	ctx := context.Background()

	t.Run("CustomerOperations", func(t *testing.T) {
		older := createTestCustomer("c-old", "owner-1", 0)
		newer := createTestCustomer("c-new", "owner-1", time.Minute)
		foreign := createTestCustomer("c-foreign", "owner-2", 2*time.Minute)

		for _, c := range []models.Customer{older, newer, foreign} {
			c := c
			if err := s.SaveCustomer(ctx, &c); err != nil {
				t.Fatalf("Failed to save customer %s: %v", c.ID, err)
			}
		}

		customers, err := s.ListCustomers(ctx, "owner-1")
		if err != nil {
			t.Fatalf("Failed to list customers: %v", err)
		}
		if len(customers) != 2 {
			t.Fatalf("Expected 2 customers, got %d", len(customers))
		}
		if customers[0].ID != "c-new" || customers[1].ID != "c-old" {
			t.Errorf("Expected newest first, got %s, %s", customers[0].ID, customers[1].ID)
		}

		found, err := s.GetCustomer(ctx, "owner-1", "c-old")
		if err != nil {
			t.Fatalf("Failed to get customer: %v", err)
		}
		if found == nil || found.Phone != older.Phone {
			t.Fatalf("Expected customer with phone %s, got %+v", older.Phone, found)
		}

		hidden, err := s.GetCustomer(ctx, "owner-1", "c-foreign")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if hidden != nil {
			t.Errorf("Expected other user's customer to be invisible, got %+v", hidden)
		}

		found.Name = "Renamed"
		found.UpdatedAt = baseTime.Add(time.Hour)
		if err := s.SaveCustomer(ctx, found); err != nil {
			t.Fatalf("Failed to update customer: %v", err)
		}
		updated, _ := s.GetCustomer(ctx, "owner-1", "c-old")
		if updated.Name != "Renamed" {
			t.Errorf("Expected name 'Renamed', got '%s'", updated.Name)
		}
	})

	t.Run("DeleteCustomer", func(t *testing.T) {
		customer := createTestCustomer("c-del", "owner-3", 0)
		if err := s.SaveCustomer(ctx, &customer); err != nil {
			t.Fatalf("Failed to save customer: %v", err)
		}

		deleted, err := s.DeleteCustomer(ctx, "someone-else", "c-del")
		if err != nil || deleted {
			t.Errorf("Expected delete by another user to be a no-op, got %v, %v", deleted, err)
		}

		deleted, err = s.DeleteCustomer(ctx, "owner-3", "c-del")
		if err != nil || !deleted {
			t.Errorf("Expected delete to succeed, got %v, %v", deleted, err)
		}

		deleted, err = s.DeleteCustomer(ctx, "owner-3", "c-del")
		if err != nil || deleted {
			t.Errorf("Expected second delete to report nothing removed, got %v, %v", deleted, err)
		}
	})

	t.Run("DebtOperations", func(t *testing.T) {
		first := createTestDebt("d-1", "c-debts", "owner-4", 0)
		due := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
		first.DueDate = &due
		second := createTestDebt("d-2", "c-debts", "owner-4", time.Minute)
		other := createTestDebt("d-3", "c-other", "owner-4", 2*time.Minute)

		for _, d := range []models.Debt{first, second, other} {
			d := d
			if err := s.SaveDebt(ctx, &d); err != nil {
				t.Fatalf("Failed to save debt %s: %v", d.ID, err)
			}
		}

		debts, err := s.ListDebts(ctx, "owner-4", "c-debts")
		if err != nil {
			t.Fatalf("Failed to list debts: %v", err)
		}
		if len(debts) != 2 {
			t.Fatalf("Expected 2 debts, got %d", len(debts))
		}
		if debts[0].ID != "d-2" {
			t.Errorf("Expected newest debt first, got %s", debts[0].ID)
		}

		all, err := s.ListDebtsByUser(ctx, "owner-4")
		if err != nil {
			t.Fatalf("Failed to list debts by user: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("Expected 3 debts for user, got %d", len(all))
		}

		loaded, err := s.GetDebt(ctx, "owner-4", "d-1")
		if err != nil || loaded == nil {
			t.Fatalf("Failed to get debt: %v", err)
		}
		if !loaded.Amount.Equal(decimal.RequireFromString("100.50")) {
			t.Errorf("Expected amount 100.50, got %s", loaded.Amount)
		}
		if loaded.DueDate == nil || loaded.DueDate.Format("2006-01-02") != "2025-06-30" {
			t.Errorf("Expected due date 2025-06-30, got %v", loaded.DueDate)
		}

		loaded.Paid = decimal.RequireFromString("40")
		loaded.Status = models.StatusPartial
		if err := s.SaveDebt(ctx, loaded); err != nil {
			t.Fatalf("Failed to update debt: %v", err)
		}
		reloaded, _ := s.GetDebt(ctx, "owner-4", "d-1")
		if !reloaded.Paid.Equal(decimal.RequireFromString("40")) || reloaded.Status != models.StatusPartial {
			t.Errorf("Expected paid=40 status=partial, got paid=%s status=%s", reloaded.Paid, reloaded.Status)
		}

		if hidden, _ := s.GetDebt(ctx, "owner-5", "d-1"); hidden != nil {
			t.Errorf("Expected debt to be invisible to other users")
		}
	})

	t.Run("DeleteDebts", func(t *testing.T) {
		for i, id := range []string{"d-x", "d-y"} {
			d := createTestDebt(id, "c-wipe", "owner-6", time.Duration(i)*time.Minute)
			if err := s.SaveDebt(ctx, &d); err != nil {
				t.Fatalf("Failed to save debt: %v", err)
			}
		}

		deleted, err := s.DeleteDebt(ctx, "owner-6", "d-x")
		if err != nil || !deleted {
			t.Fatalf("Expected debt delete to succeed, got %v, %v", deleted, err)
		}

		removed, err := s.DeleteDebtsByCustomer(ctx, "owner-6", "c-wipe")
		if err != nil {
			t.Fatalf("Failed to delete debts by customer: %v", err)
		}
		if removed != 1 {
			t.Errorf("Expected 1 debt removed, got %d", removed)
		}
	})

	t.Run("ConditionalPaymentUpdate", func(t *testing.T) {
		d := createTestDebt("d-cas", "c-cas", "owner-7", 0)
		if err := s.SaveDebt(ctx, &d); err != nil {
			t.Fatalf("Failed to save debt: %v", err)
		}

		first := d
		first.Paid = decimal.RequireFromString("30")
		first.Status = models.StatusPartial
		updated, err := s.UpdateDebtPayment(ctx, &first, decimal.Zero)
		if err != nil || !updated {
			t.Fatalf("Expected first payment to land, got %v, %v", updated, err)
		}

		// A second writer that read paid=0 must lose.
		stale := d
		stale.Paid = decimal.RequireFromString("50")
		stale.Status = models.StatusPartial
		updated, err = s.UpdateDebtPayment(ctx, &stale, decimal.Zero)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if updated {
			t.Error("Expected stale payment to be refused")
		}

		foreign := first
		foreign.UserID = "owner-8"
		if updated, _ := s.UpdateDebtPayment(ctx, &foreign, first.Paid); updated {
			t.Error("Expected update by another user to be refused")
		}

		loaded, _ := s.GetDebt(ctx, "owner-7", "d-cas")
		if loaded == nil || !loaded.Paid.Equal(decimal.RequireFromString("30")) {
			t.Errorf("Expected paid=30 after conflicting writes, got %+v", loaded)
		}
	})

	t.Run("ProfileOperations", func(t *testing.T) {
		missing, err := s.GetProfile(ctx, "nobody")
		if err != nil || missing != nil {
			t.Errorf("Expected missing profile to be nil, got %v, %v", missing, err)
		}

		profile := models.NewTrialProfile("profile-user", "p@example.com", baseTime, models.DefaultTrialDays)
		if err := s.SaveProfile(ctx, profile); err != nil {
			t.Fatalf("Failed to save profile: %v", err)
		}

		profile.Subscribe(baseTime.AddDate(0, 0, 3), models.DefaultSubscriptionDays)
		profile.LastTransactionID = "pi_profile"
		if err := s.SaveProfile(ctx, profile); err != nil {
			t.Fatalf("Failed to update profile: %v", err)
		}

		loaded, err := s.GetProfile(ctx, "profile-user")
		if err != nil || loaded == nil {
			t.Fatalf("Failed to get profile: %v", err)
		}
		if !loaded.IsSubscribed {
			t.Error("Expected profile to be subscribed")
		}
		if loaded.LastTransactionID != "pi_profile" {
			t.Errorf("Expected last transaction pi_profile, got %q", loaded.LastTransactionID)
		}
		if !loaded.TrialEndsAt.Equal(baseTime.AddDate(0, 0, 33)) {
			t.Errorf("Expected trial end %v, got %v", baseTime.AddDate(0, 0, 33), loaded.TrialEndsAt)
		}
	})
}
