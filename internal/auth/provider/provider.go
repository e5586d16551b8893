// Package provider performs the credential exchange against the remote
// fitness backend. It is a pure transform plus one network call: given an
// email and password it returns a normalized user record and bearer token, or
// a caller-presentable error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DannyMyles/fitness-gateway/pkg/apierror"
)

// LoginPath is the backend credential exchange endpoint.
const LoginPath = "/api/v1/auth/login"

// AuthUser is the normalized user record extracted from whatever layout the
// backend returned.
type AuthUser struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// Result is a successful credential exchange.
type Result struct {
	User  AuthUser
	Token string
	// RefreshToken is set when the backend issued one alongside the access
	// token; it never leaves the server side.
	RefreshToken string
	// Shape names the response layout that matched, for diagnostics.
	Shape string
}

// Provider exchanges credentials for a backend token.
type Provider struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient injects the HTTP client used for the login call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Login performs the credential exchange. Both fields must be non-empty; the
// password is never logged.
func (p *Provider) Login(ctx context.Context, email, password string) (*Result, error) {
	if email == "" || password == "" {
		return nil, apierror.New(apierror.CodeValidation, "Email and password are required")
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "could not encode login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+LoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "could not build login request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeUnavailable, "Login request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.CodeUnavailable, "Login request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, p.loginFailure(ctx, resp.StatusCode, raw)
	}

	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, apierror.WithStatus(apierror.CodeBadResponse, "Invalid JSON response from server", resp.StatusCode)
	}

	user, token, shapeName, ok := normalize(root)
	if !ok {
		p.logger.ErrorContext(ctx, "unrecognized login response shape",
			"email", email,
			"fields", topLevelKeys(root),
		)
		return nil, apierror.New(apierror.CodeBadResponse, "Unable to parse user data from server response")
	}

	if token == "" {
		p.logger.ErrorContext(ctx, "login response carried no token",
			"email", email,
			"shape", shapeName,
		)
		return nil, apierror.New(apierror.CodeBadResponse, "No token received from server")
	}

	result := &Result{
		User: AuthUser{
			ID:    firstString(user, "", "_id", "id", "userId"),
			Email: firstString(user, email, "email"),
			Name:  firstString(user, "User", "name", "username", "fullName"),
			Role:  firstString(user, "user", "role", "roleName"),
		},
		Token:        token,
		RefreshToken: firstString(root, firstString(user, "", "refreshToken", "refresh_token"), "refreshToken", "refresh_token"),
		Shape:        shapeName,
	}

	p.logger.InfoContext(ctx, "credential exchange succeeded",
		"user_id", result.User.ID,
		"role", result.User.Role,
		"shape", shapeName,
	)
	return result, nil
}

// loginFailure surfaces the backend's own error message when the failure body
// is parseable JSON, otherwise a generic status message.
func (p *Provider) loginFailure(ctx context.Context, status int, raw []byte) error {
	msg := fmt.Sprintf("Login failed with status: %d", status)

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		if m := firstString(body, "", "error", "message"); m != "" {
			msg = m
		}
	}

	p.logger.WarnContext(ctx, "credential exchange rejected",
		"status", status,
	)

	code := apierror.CodeUnauthorized
	if status >= 500 {
		code = apierror.CodeUnavailable
	}
	return apierror.WithStatus(code, msg, status)
}

func topLevelKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
