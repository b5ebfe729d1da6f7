package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"deyn.app/cloud/auth"
	"deyn.app/cloud/handlers"
	"deyn.app/cloud/internal/config"
	"deyn.app/cloud/internal/email"
	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/internal/version"
	"deyn.app/cloud/payment"
	"deyn.app/cloud/repository"
	"deyn.app/cloud/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	godotenv.Load()
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	appVersion := version.Load("VERSION")

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %s", err)
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Release:          appVersion,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage: %s", err)
	}
	defer store.Close()

	verifierConfig := auth.VerifierConfig{Secret: cfg.AuthJWTSecret}
	if cfg.AuthJWTSecret == "" {
		verifierConfig.JWKSURL = auth.JWKSURL(cfg.AuthURL)
	}
	verifier, err := auth.NewVerifier(verifierConfig)
	if err != nil {
		log.Fatalf("auth verifier: %s", err)
	}

	server := handlers.NewHttpServer(handlers.Deps{
		Customers: repository.NewCustomerRepository(store, cfg.CascadeCustomerDelete, repository.Options{}),
		Debts:     repository.NewDebtRepository(store, repository.Options{}),
		Profiles:  repository.NewProfileRepository(store, cfg.TrialDays, cfg.SubscriptionDays, repository.Options{}),
		Payments:  newProcessor(cfg),
		Auth:      auth.NewClient(cfg.AuthURL, cfg.AuthAnonKey, &http.Client{Timeout: 15 * time.Second}),
		Verifier:  verifier,
		Mailer: email.NewSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		}),
	}, handlers.Options{
		Version:                  appVersion,
		ProtectedPrefix:          cfg.ProtectedPrefix,
		LoginPath:                cfg.LoginPath,
		PasswordResetRedirectURL: cfg.PasswordResetRedirectURL,
		StripeWebhookSecret:      cfg.StripeWebhookSecret,
		EnforceSubscription:      cfg.EnforceSubscription,
		AllowedOrigins:           cfg.AllowedOrigins,
		SecureCookies:            os.Getenv("GO_ENV") == "production",
		TrustProxyHeaders:        cfg.TrustProxyHeaders,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Deyn Cloud API starting", map[string]interface{}{
			"version":   appVersion,
			"port":      cfg.Port,
			"processor": cfg.PaymentProcessor,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func newProcessor(cfg *config.Config) payment.Processor {
	if cfg.PaymentProcessor == "stripe" {
		return payment.NewStripeGateway(cfg.StripeSecret, cfg.PaymentCurrency, nil)
	}
	return payment.NewStub(cfg.PaymentStubDelay)
}
