package handlers

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

	"deyn.app/cloud/auth"
	"deyn.app/cloud/models"
	"deyn.app/cloud/payment"
	"deyn.app/cloud/repository"
	"deyn.app/cloud/storage"
)

const testJWTSecret = "handlers-test-secret-with-enough-length"

type testEnv struct {
	server   *Server
	store    *storage.MemoryStorage
	clock    *testClock
	provider *fakeProvider
	mailer   *recordingMailer
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProvider struct {
	signUp    func(email, password string) (*auth.Tokens, error)
	signIn    func(email, password string) (*auth.Tokens, error)
	resets    []string
	updated   []string
	signedOut []string
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*auth.Tokens, error) {
	return p.signUp(email, password)
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*auth.Tokens, error) {
	return p.signIn(email, password)
}

func (p *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	p.signedOut = append(p.signedOut, accessToken)
	return nil
}

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	if email == "" {
		return &models.ValidationError{Field: "email", Message: "email is required"}
	}
	p.resets = append(p.resets, email+"|"+redirectURL)
	return nil
}

func (p *fakeProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	p.updated = append(p.updated, password)
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func newTestEnv(t testing.TB, opts Options) *testEnv {
	return newTestEnvWithStore(t, storage.NewMemoryStorage(), opts)
}

func newTestEnvWithStore(t testing.TB, store *storage.MemoryStorage, opts Options) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	repoOpts := repository.Options{Now: clock.Now}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{Secret: testJWTSecret})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	provider := &fakeProvider{
		signUp: func(email, password string) (*auth.Tokens, error) {
			return &auth.Tokens{User: auth.User{ID: "new-user", Email: email}}, nil
		},
		signIn: func(email, password string) (*auth.Tokens, error) {
			return &auth.Tokens{AccessToken: "access", ExpiresIn: 3600, User: auth.User{ID: "user-1", Email: email}}, nil
		},
	}
	mailer := &recordingMailer{}

	server := NewHttpServer(Deps{
		Customers: repository.NewCustomerRepository(store, false, repoOpts),
		Debts:     repository.NewDebtRepository(store, repoOpts),
		Profiles:  repository.NewProfileRepository(store, 14, 30, repoOpts),
		Payments:  payment.NewStub(0),
		Auth:      provider,
		Verifier:  verifier,
		Mailer:    mailer,
	}, opts)

	return &testEnv{server: server, store: store, clock: clock, provider: provider, mailer: mailer}
}

func tokenFor(t testing.TB, userID string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.com",
		"aud":   "authenticated",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

// do sends a request as userID (anonymous when empty) and returns the
// recorder.
func (e *testEnv) do(t testing.TB, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5000"
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}

	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decodeBody(t testing.TB, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t testing.TB, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func (e *testEnv) createCustomer(t testing.TB, userID, name, phone string) models.Customer {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/customers", userID, map[string]string{"name": name, "phone": phone})
	expectStatus(t, w, http.StatusCreated)
	var customer models.Customer
	decodeBody(t, w, &customer)
	return customer
}

func (e *testEnv) createDebt(t testing.TB, userID, customerID string, amount string) models.Debt {
	t.Helper()
	w := e.do(t, http.MethodPost, fmt.Sprintf("/api/customers/%s/debts", customerID), userID, map[string]interface{}{
		"amount":      json.Number(amount),
		"description": "goods",
	})
	expectStatus(t, w, http.StatusCreated)
	var debt models.Debt
	decodeBody(t, w, &debt)
	return debt
}
