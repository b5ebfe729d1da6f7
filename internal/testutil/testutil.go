// Package testutil builds fully wired servers and seeded ledgers for the
// end-to-end tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82/webhook"

	"deyn.app/cloud/auth"
	"deyn.app/cloud/handlers"
	"deyn.app/cloud/models"
	"deyn.app/cloud/payment"
	"deyn.app/cloud/repository"
	"deyn.app/cloud/storage"
)

const (
	JWTSecret     = "integration-test-secret-with-enough-length"
	WebhookSecret = "whsec_integration"
)

// AuthProvider registers users in memory and issues HMAC access tokens that
// the server's verifier accepts.
type AuthProvider struct {
	mu    sync.Mutex
	users map[string]auth.User
	pass  map[string]string
	Reset []string
}

func NewAuthProvider() *AuthProvider {
	return &AuthProvider{
		users: make(map[string]auth.User),
		pass:  make(map[string]string),
	}
}

func (p *AuthProvider) SignUp(ctx context.Context, email, password string) (*auth.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[email]; exists {
		return nil, &auth.ProviderError{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	user := auth.User{ID: fmt.Sprintf("user-%d", len(p.users)+1), Email: email}
	p.users[email] = user
	p.pass[email] = password
	return p.tokens(user)
}

func (p *AuthProvider) SignIn(ctx context.Context, email, password string) (*auth.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, exists := p.users[email]
	if !exists || p.pass[email] != password {
		return nil, &auth.ProviderError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	return p.tokens(user)
}

func (p *AuthProvider) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

func (p *AuthProvider) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reset = append(p.Reset, email)
	return nil
}

func (p *AuthProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return nil
}

func (p *AuthProvider) tokens(user auth.User) (*auth.Tokens, error) {
	token, err := SignToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &auth.Tokens{AccessToken: token, TokenType: "bearer", ExpiresIn: 3600, User: user}, nil
}

// SignToken issues an access token for userID signed with JWTSecret.
func SignToken(userID, email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"aud":   "authenticated",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	return token.SignedString([]byte(JWTSecret))
}

// Mailer records the recipients of every message sent.
type Mailer struct {
	mu         sync.Mutex
	Recipients []string
}

func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recipients = append(m.Recipients, to)
	return nil
}

func (m *Mailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Recipients)
}

type Env struct {
	Server   *handlers.Server
	Store    storage.Storage
	Provider *AuthProvider
	Mailer   *Mailer
}

// NewEnv wires a server over store with the stub processor, the in-memory
// auth provider and a recording mailer.
func NewEnv(t *testing.T, store storage.Storage, opts handlers.Options) *Env {
	t.Helper()

	verifier, err := auth.NewVerifier(auth.VerifierConfig{Secret: JWTSecret})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	if opts.StripeWebhookSecret == "" {
		opts.StripeWebhookSecret = WebhookSecret
	}

	provider := NewAuthProvider()
	mailer := &Mailer{}
	server := handlers.NewHttpServer(handlers.Deps{
		Customers: repository.NewCustomerRepository(store, false, repository.Options{}),
		Debts:     repository.NewDebtRepository(store, repository.Options{}),
		Profiles:  repository.NewProfileRepository(store, models.DefaultTrialDays, models.DefaultSubscriptionDays, repository.Options{}),
		Payments:  payment.NewStub(0),
		Auth:      provider,
		Verifier:  verifier,
		Mailer:    mailer,
	}, opts)

	return &Env{Server: server, Store: store, Provider: provider, Mailer: mailer}
}

// Do sends a JSON request with an optional bearer token.
func (e *Env) Do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Server.ServeHTTP(w, req)
	return w
}

// SeedLedger stores two customers for userID, each with one unpaid debt.
func SeedLedger(t *testing.T, store storage.Storage, userID string) []*models.Customer {
	t.Helper()

	ctx := context.Background()
	session := models.Session{UserID: userID}
	customers := repository.NewCustomerRepository(store, false, repository.Options{})
	debts := repository.NewDebtRepository(store, repository.Options{})

	seed := []struct {
		name   string
		phone  string
		amount int64
	}{
		{"Amina Hassan", "611111", 120},
		{"Said Omar", "622222", 45},
	}

	var created []*models.Customer
	for _, s := range seed {
		customer, err := customers.Create(ctx, session, s.name, s.phone)
		if err != nil {
			t.Fatalf("Failed to seed customer %s: %v", s.name, err)
		}
		if _, err := debts.Create(ctx, session, customer.ID, decimal.NewFromInt(s.amount), "seed", nil); err != nil {
			t.Fatalf("Failed to seed debt for %s: %v", s.name, err)
		}
		created = append(created, customer)
	}
	return created
}

// SignedWebhook builds a Stripe webhook request signed with WebhookSecret.
func SignedWebhook(eventType string, object map[string]interface{}) *http.Request {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":     "evt_integration",
		"object": "event",
		"type":   eventType,
		"data": map[string]interface{}{
			"object": object,
		},
	})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

// AssertStatus fails the test when the recorder's status differs.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("Expected status %d, got %d: %s", expected, w.Code, w.Body.String())
	}
}

// AssertErrorResponse checks the status and the error message of a JSON
// error body.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	AssertStatus(t, w, expectedStatus)

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if response["error"] != expectedError {
		t.Errorf("Expected error '%s', got '%s'", expectedError, response["error"])
	}
}

// Decode reads the JSON body into v.
func Decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}
