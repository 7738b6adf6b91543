package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
)

// captureSender records the last reset token instead of sending mail.
type captureSender struct {
	to    string
	token string
}

func (s *captureSender) SendPasswordResetEmail(_ context.Context, to, _, token string) error {
	s.to = to
	s.token = token
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

// call runs a request through the Fiber app without a listener and decodes
// the JSON response into out when out is non-nil.
func call(t *testing.T, srv *Server, method, path, token string, body, out interface{}) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func registerUser(t *testing.T, srv *Server, email string) *domain.AuthResponse {
	t.Helper()
	var resp domain.AuthResponse
	status := call(t, srv, http.MethodPost, "/auth/register", "", domain.RegisterRequest{
		Email:     email,
		Password:  "password123",
		FirstName: "Dev",
		LastName:  "User",
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("register status = %d", status)
	}
	return &resp
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	if reg.User.Email != "dev@example.com" {
		t.Errorf("user email = %q", reg.User.Email)
	}
	if len(reg.User.Permissions) == 0 {
		t.Error("registered user has no permissions")
	}
	if reg.Tokens.AccessToken == "" || reg.Tokens.RefreshToken == "" {
		t.Fatal("register returned incomplete tokens")
	}

	// Duplicate registration conflicts.
	status := call(t, srv, http.MethodPost, "/auth/register", "", domain.RegisterRequest{
		Email: "dev@example.com", Password: "password123", FirstName: "Dev", LastName: "User",
	}, nil)
	if status != http.StatusConflict {
		t.Errorf("duplicate register status = %d", status)
	}

	var login domain.AuthResponse
	status = call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "password123",
	}, &login)
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	if login.User.LastLoginAt == nil {
		t.Error("login did not stamp last_login_at")
	}

	status = call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "wrong-password",
	}, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("bad-password login status = %d", status)
	}
}

func TestMeRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	var me domain.User
	if status := call(t, srv, http.MethodGet, "/auth/me", reg.Tokens.AccessToken, nil, &me); status != http.StatusOK {
		t.Fatalf("me status = %d", status)
	}
	if me.ID != reg.User.ID {
		t.Errorf("me returned %v, want %v", me.ID, reg.User.ID)
	}

	if status := call(t, srv, http.MethodGet, "/auth/me", "", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("me without token status = %d", status)
	}
	if status := call(t, srv, http.MethodGet, "/auth/me", "garbage", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("me with garbage token status = %d", status)
	}
	// A refresh token must not pass as an access token.
	if status := call(t, srv, http.MethodGet, "/auth/me", reg.Tokens.RefreshToken, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("me with refresh token status = %d", status)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	var refreshed domain.RefreshResponse
	status := call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: reg.Tokens.RefreshToken,
	}, &refreshed)
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d", status)
	}
	if refreshed.Tokens.RefreshToken == reg.Tokens.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// The rotated-out token is dead.
	status = call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: reg.Tokens.RefreshToken,
	}, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("replayed refresh status = %d", status)
	}

	// The new one still works.
	status = call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: refreshed.Tokens.RefreshToken,
	}, nil)
	if status != http.StatusOK {
		t.Errorf("rotated refresh status = %d", status)
	}
}

func TestLogoutKillsSession(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	if status := call(t, srv, http.MethodPost, "/auth/logout", "", domain.LogoutRequest{
		RefreshToken: reg.Tokens.RefreshToken,
	}, nil); status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}

	status := call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: reg.Tokens.RefreshToken,
	}, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d", status)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	// Second device.
	var second domain.AuthResponse
	if status := call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "password123",
	}, &second); status != http.StatusOK {
		t.Fatalf("second login status = %d", status)
	}

	var sessions []domain.SessionInfo
	if status := call(t, srv, http.MethodGet, "/auth/sessions", reg.Tokens.AccessToken, nil, &sessions); status != http.StatusOK {
		t.Fatalf("sessions status = %d", status)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}

	var current, other *domain.SessionInfo
	for i := range sessions {
		if sessions[i].Current {
			current = &sessions[i]
		} else {
			other = &sessions[i]
		}
	}
	if current == nil || other == nil {
		t.Fatalf("expected one current and one other session: %+v", sessions)
	}

	if status := call(t, srv, http.MethodDelete, "/auth/sessions/"+other.ID.String(), reg.Tokens.AccessToken, nil, nil); status != http.StatusOK {
		t.Fatalf("revoke status = %d", status)
	}
	// The revoked device can no longer refresh.
	if status := call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: second.Tokens.RefreshToken,
	}, nil); status != http.StatusUnauthorized {
		t.Errorf("refresh on revoked session status = %d", status)
	}

	if status := call(t, srv, http.MethodPost, "/auth/revoke-all-sessions", reg.Tokens.AccessToken, nil, nil); status != http.StatusOK {
		t.Fatalf("revoke-all status = %d", status)
	}
	if status := call(t, srv, http.MethodGet, "/auth/sessions", reg.Tokens.AccessToken, nil, &sessions); status != http.StatusOK {
		t.Fatalf("sessions after revoke-all status = %d", status)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions after revoke-all = %d, want 0", len(sessions))
	}
}

func TestChangePasswordRevokesOtherDevices(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	var second domain.AuthResponse
	if status := call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "password123",
	}, &second); status != http.StatusOK {
		t.Fatalf("second login status = %d", status)
	}

	status := call(t, srv, http.MethodPost, "/auth/change-password", reg.Tokens.AccessToken, domain.ChangePasswordRequest{
		CurrentPassword: "password123",
		NewPassword:     "even-better-pass",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("change-password status = %d", status)
	}

	// Old password is gone, new one works.
	if status := call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "password123",
	}, nil); status != http.StatusUnauthorized {
		t.Errorf("login with old password status = %d", status)
	}
	if status := call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "even-better-pass",
	}, nil); status != http.StatusOK {
		t.Errorf("login with new password status = %d", status)
	}

	// The changing session survives, the other device's does not.
	if status := call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: reg.Tokens.RefreshToken,
	}, nil); status != http.StatusOK {
		t.Errorf("refresh on changing session status = %d", status)
	}
	if status := call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: second.Tokens.RefreshToken,
	}, nil); status != http.StatusUnauthorized {
		t.Errorf("refresh on stale session status = %d", status)
	}
}

func TestUpdateProfile(t *testing.T) {
	srv := newTestServer(t)
	reg := registerUser(t, srv, "dev@example.com")

	first := "Ada"
	var updated domain.User
	status := call(t, srv, http.MethodPut, "/auth/profile", reg.Tokens.AccessToken, domain.ProfileUpdate{
		FirstName:   &first,
		Preferences: map[string]string{"theme": "dark"},
	}, &updated)
	if status != http.StatusOK {
		t.Fatalf("profile status = %d", status)
	}
	if updated.FirstName != "Ada" {
		t.Errorf("first name = %q", updated.FirstName)
	}
	if updated.LastName != "User" {
		t.Errorf("untouched field changed: %q", updated.LastName)
	}
	if updated.Preferences["theme"] != "dark" {
		t.Errorf("preferences = %v", updated.Preferences)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	mail := &captureSender{}
	srv, err := New(Options{Mail: mail})
	if err != nil {
		t.Fatal(err)
	}
	reg := registerUser(t, srv, "dev@example.com")

	if status := call(t, srv, http.MethodPost, "/auth/forgot-password", "", domain.ForgotPasswordRequest{
		Email: "dev@example.com",
	}, nil); status != http.StatusOK {
		t.Fatalf("forgot-password status = %d", status)
	}
	if mail.token == "" {
		t.Fatal("no reset email sent")
	}

	// Unknown accounts get the same answer.
	if status := call(t, srv, http.MethodPost, "/auth/forgot-password", "", domain.ForgotPasswordRequest{
		Email: "nobody@example.com",
	}, nil); status != http.StatusOK {
		t.Errorf("forgot-password for unknown account status = %d", status)
	}

	if status := call(t, srv, http.MethodPost, "/auth/reset-password", "", domain.ResetPasswordRequest{
		Token: mail.token, Password: "reset-password-1",
	}, nil); status != http.StatusOK {
		t.Fatalf("reset-password status = %d", status)
	}

	// Token is single-use.
	if status := call(t, srv, http.MethodPost, "/auth/reset-password", "", domain.ResetPasswordRequest{
		Token: mail.token, Password: "reset-password-2",
	}, nil); status != http.StatusBadRequest {
		t.Errorf("reused reset token status = %d", status)
	}

	// Every pre-reset session is dead.
	if status := call(t, srv, http.MethodPost, "/auth/refresh", "", domain.RefreshRequest{
		RefreshToken: reg.Tokens.RefreshToken,
	}, nil); status != http.StatusUnauthorized {
		t.Errorf("refresh after reset status = %d", status)
	}

	if status := call(t, srv, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email: "dev@example.com", Password: "reset-password-1",
	}, nil); status != http.StatusOK {
		t.Errorf("login with reset password status = %d", status)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	if status := call(t, srv, http.MethodGet, "/health", "", nil, nil); status != http.StatusOK {
		t.Errorf("health status = %d", status)
	}
}
