package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/models"
)

const defaultTimeout = 10 * time.Second

// ErrUnavailable wraps transport failures reaching the provider.
var ErrUnavailable = errors.New("auth provider unavailable")

// ProviderError is a non-2xx answer from the auth provider.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("auth provider returned %d: %s", e.Status, e.Message)
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Tokens is the provider's token response.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Client calls the hosted auth provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(authURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    providerBase(authURL),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// providerBase appends the provider's API prefix unless it is already there.
func providerBase(authURL string) string {
	base := strings.TrimSuffix(strings.TrimSpace(authURL), "/")
	if strings.HasSuffix(base, "/auth/v1") {
		return base
	}
	return base + "/auth/v1"
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a user. Tokens.AccessToken is empty when the provider
// requires e-mail confirmation first.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Tokens, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}

	var raw struct {
		Tokens
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.do(ctx, http.MethodPost, "/signup", "", credentials{email, password}, &raw); err != nil {
		return nil, remote("sign up", err)
	}

	tokens := raw.Tokens
	if tokens.User.ID == "" {
		tokens.User = User{ID: raw.ID, Email: raw.Email}
	}
	return &tokens, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}

	var tokens Tokens
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", credentials{email, password}, &tokens); err != nil {
		return nil, remote("sign in", err)
	}
	return &tokens, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return remote("sign out", err)
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, remote("get user", err)
	}
	return &user, nil
}

// SendPasswordReset asks the provider to mail a reset link that lands on
// redirectURL.
func (c *Client) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &models.ValidationError{Field: "email", Message: "email is required"}
	}

	path := "/recover"
	if redirectURL != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectURL)
	}
	if err := c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil); err != nil {
		return remote("send password reset", err)
	}
	return nil
}

func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) error {
	if len(password) < 6 {
		return &models.ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	if err := c.do(ctx, http.MethodPut, "/user", accessToken, map[string]string{"password": password}, nil); err != nil {
		return remote("update password", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{Status: resp.StatusCode, Message: providerMessage(data)}
		logger.Warn("Auth provider request failed", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
			"error":  perr.Message,
		})
		return perr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// providerMessage picks the first human readable field the provider set.
func providerMessage(data []byte) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				return m
			}
		}
	}
	if len(data) > 0 {
		return strings.TrimSpace(string(data))
	}
	return "unexpected response"
}

func requireCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return &models.ValidationError{Field: "email", Message: "email is required"}
	}
	if password == "" {
		return &models.ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

func remote(op string, err error) error {
	return &models.RemoteError{Op: op, Err: err}
}

// AsProviderError reports the provider status behind err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
