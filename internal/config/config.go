package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	DatabaseURL string

	AuthURL       string
	AuthAnonKey   string
	AuthJWTSecret string

	PaymentProcessor    string // "stub" or "stripe"
	PaymentCurrency     string
	PaymentStubDelay    time.Duration
	StripeSecret        string
	StripeWebhookSecret string

	TrialDays        int
	SubscriptionDays int

	ProtectedPrefix          string
	LoginPath                string
	PasswordResetRedirectURL string

	CascadeCustomerDelete bool
	EnforceSubscription   bool
	AllowedOrigins        []string
	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	SentryDSN string
}

func New() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	authURL := os.Getenv("AUTH_URL")
	if authURL == "" {
		return nil, errors.New("AUTH_URL environment variable is required")
	}

	authAnonKey := os.Getenv("AUTH_ANON_KEY")
	if authAnonKey == "" {
		return nil, errors.New("AUTH_ANON_KEY environment variable is required")
	}

	paymentProcessor := strings.ToLower(os.Getenv("PAYMENT_PROCESSOR"))
	if paymentProcessor == "" {
		paymentProcessor = "stub"
	}

	stripeSecret := os.Getenv("STRIPE_SECRET")
	stripeWebhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")

	switch paymentProcessor {
	case "stub":
	case "stripe":
		if stripeSecret == "" || stripeWebhookSecret == "" {
			return nil, errors.New("STRIPE_SECRET and STRIPE_WEBHOOK_SECRET environment variables are required when using Stripe")
		}
	default:
		return nil, fmt.Errorf("PAYMENT_PROCESSOR must be \"stub\" or \"stripe\", got %q", paymentProcessor)
	}

	stubDelay, err := durationEnv("PAYMENT_STUB_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}

	trialDays, err := intEnv("TRIAL_DAYS", 14)
	if err != nil {
		return nil, err
	}

	subscriptionDays, err := intEnv("SUBSCRIPTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cascade, err := boolEnv("CASCADE_CUSTOMER_DELETE", false)
	if err != nil {
		return nil, err
	}

	enforce, err := boolEnv("ENFORCE_SUBSCRIPTION", true)
	if err != nil {
		return nil, err
	}

	trustProxy, err := boolEnv("TRUST_PROXY_HEADERS", false)
	if err != nil {
		return nil, err
	}

	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUsername := os.Getenv("SMTP_USERNAME")
	smtpPassword := os.Getenv("SMTP_PASSWORD")
	if smtpHost != "" && (smtpPort == "" || smtpUsername == "" || smtpPassword == "") {
		return nil, errors.New("SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD environment variables are required when SMTP_HOST is set")
	}

	emailFrom := os.Getenv("EMAIL_FROM")
	if emailFrom == "" {
		emailFrom = "billing@deyn.app"
	}

	return &Config{
		Port:                     port,
		DatabaseURL:              dbURL,
		AuthURL:                  authURL,
		AuthAnonKey:              authAnonKey,
		AuthJWTSecret:            os.Getenv("AUTH_JWT_SECRET"),
		PaymentProcessor:         paymentProcessor,
		PaymentCurrency:          stringEnv("PAYMENT_CURRENCY", "usd"),
		PaymentStubDelay:         stubDelay,
		StripeSecret:             stripeSecret,
		StripeWebhookSecret:      stripeWebhookSecret,
		TrialDays:                trialDays,
		SubscriptionDays:         subscriptionDays,
		ProtectedPrefix:          stringEnv("PROTECTED_PREFIX", "/dashboard"),
		LoginPath:                stringEnv("LOGIN_PATH", "/login"),
		PasswordResetRedirectURL: os.Getenv("PASSWORD_RESET_REDIRECT_URL"),
		CascadeCustomerDelete:    cascade,
		EnforceSubscription:      enforce,
		AllowedOrigins:           listEnv("ALLOWED_ORIGINS", []string{"*"}),
		TrustProxyHeaders:        trustProxy,
		SMTPHost:                 smtpHost,
		SMTPPort:                 smtpPort,
		SMTPUsername:             smtpUsername,
		SMTPPassword:             smtpPassword,
		EmailFrom:                emailFrom,
		SentryDSN:                os.Getenv("SENTRY_DSN"),
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, raw)
	}
	return v, nil
}
