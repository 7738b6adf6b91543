// Package authapi is the HTTP client for the ui-axon auth API. It covers the
// full wire contract; the session manager drives it and owns the tokens, so
// authenticated calls take the access token explicitly.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
	"github.com/Badshah-h/ui-axon-auth/pkg/validator"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	client   *http.Client
	baseURL  string
	validate *validator.Validator
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client (timeouts, transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("auth api base URL is required")
	}

	c := &Client{
		client:   &http.Client{Timeout: defaultTimeout},
		baseURL:  strings.TrimRight(baseURL, "/"),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	if err := c.validate.Validate(req); err != nil {
		return nil, err
	}
	var resp domain.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	if err := c.validate.Validate(req); err != nil {
		return nil, err
	}
	var resp domain.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := domain.LogoutRequest{RefreshToken: refreshToken}
	return c.do(ctx, http.MethodPost, "/auth/logout", "", req, nil)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	req := domain.RefreshRequest{RefreshToken: refreshToken}
	var resp domain.RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

func (c *Client) Me(ctx context.Context, accessToken string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, accessToken string, upd domain.ProfileUpdate) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodPut, "/auth/profile", accessToken, upd, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	req := domain.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := c.validate.Validate(req); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/change-password", accessToken, req, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, emailAddr string) error {
	req := domain.ForgotPasswordRequest{Email: emailAddr}
	if err := c.validate.Validate(req); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", "", req, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	req := domain.ResetPasswordRequest{Token: token, Password: password}
	if err := c.validate.Validate(req); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/reset-password", "", req, nil)
}

func (c *Client) Sessions(ctx context.Context, accessToken string) ([]domain.SessionInfo, error) {
	var sessions []domain.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/auth/sessions", accessToken, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) RevokeSession(ctx context.Context, accessToken string, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/auth/sessions/"+id.String(), accessToken, nil, nil)
}

func (c *Client) RevokeAllSessions(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/revoke-all-sessions", accessToken, nil, nil)
}

// errorBody matches the server's error envelope; some deployments use
// "error" instead of "message".
type errorBody struct {
	Message string `json:"message"`
	Reason  string `json:"error"`
}

func (e errorBody) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Reason
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", domain.TokenTypeBearer+" "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.text() != "" {
			apiErr.Message = eb.text()
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
