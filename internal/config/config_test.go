package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory://")
	t.Setenv("AUTH_URL", "https://example.supabase.co")
	t.Setenv("AUTH_ANON_KEY", "anon")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.PaymentProcessor != "stub" {
		t.Errorf("Expected stub processor, got %s", cfg.PaymentProcessor)
	}
	if cfg.PaymentStubDelay != 2*time.Second {
		t.Errorf("Expected 2s stub delay, got %s", cfg.PaymentStubDelay)
	}
	if cfg.TrialDays != 14 || cfg.SubscriptionDays != 30 {
		t.Errorf("Expected 14/30 days, got %d/%d", cfg.TrialDays, cfg.SubscriptionDays)
	}
	if cfg.ProtectedPrefix != "/dashboard" || cfg.LoginPath != "/login" {
		t.Errorf("Unexpected route protection defaults %s %s", cfg.ProtectedPrefix, cfg.LoginPath)
	}
	if cfg.CascadeCustomerDelete {
		t.Error("Expected cascade delete to be off by default")
	}
	if !cfg.EnforceSubscription {
		t.Error("Expected subscription enforcement by default")
	}
	if cfg.TrustProxyHeaders {
		t.Error("Expected proxy headers to be untrusted by default")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origin, got %v", cfg.AllowedOrigins)
	}
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9000")
	t.Setenv("TRIAL_DAYS", "7")
	t.Setenv("CASCADE_CUSTOMER_DELETE", "true")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("PAYMENT_STUB_DELAY", "0s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.TrialDays != 7 {
		t.Errorf("Expected 7 trial days, got %d", cfg.TrialDays)
	}
	if !cfg.CascadeCustomerDelete {
		t.Error("Expected cascade delete")
	}
	if !cfg.TrustProxyHeaders {
		t.Error("Expected proxy headers to be trusted")
	}
	if cfg.PaymentStubDelay != 0 {
		t.Errorf("Expected no stub delay, got %s", cfg.PaymentStubDelay)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorMsg string
	}{
		{
			name:     "missing database",
			env:      map[string]string{"DATABASE_URL": ""},
			errorMsg: "DATABASE_URL",
		},
		{
			name:     "missing auth url",
			env:      map[string]string{"AUTH_URL": ""},
			errorMsg: "AUTH_URL",
		},
		{
			name:     "stripe without secrets",
			env:      map[string]string{"PAYMENT_PROCESSOR": "stripe"},
			errorMsg: "STRIPE_SECRET",
		},
		{
			name:     "unknown processor",
			env:      map[string]string{"PAYMENT_PROCESSOR": "paypal"},
			errorMsg: "PAYMENT_PROCESSOR",
		},
		{
			name:     "bad trial days",
			env:      map[string]string{"TRIAL_DAYS": "-3"},
			errorMsg: "TRIAL_DAYS",
		},
		{
			name:     "bad bool",
			env:      map[string]string{"ENFORCE_SUBSCRIPTION": "maybe"},
			errorMsg: "ENFORCE_SUBSCRIPTION",
		},
		{
			name:     "bad proxy flag",
			env:      map[string]string{"TRUST_PROXY_HEADERS": "sometimes"},
			errorMsg: "TRUST_PROXY_HEADERS",
		},
		{
			name:     "incomplete smtp",
			env:      map[string]string{"SMTP_HOST": "smtp.example.com"},
			errorMsg: "SMTP_PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}
