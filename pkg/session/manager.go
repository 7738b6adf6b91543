// Package session owns the client-side authentication state for the ui-axon
// platform: the current user snapshot and token pair, proactive token
// refresh, persistence across process restarts, and change notification for
// UI consumers. One Manager is constructed at application startup and passed
// to whoever needs it; there is no package-level instance.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
	"github.com/Badshah-h/ui-axon-auth/pkg/jwt"
	"github.com/Badshah-h/ui-axon-auth/pkg/storage"
)

const (
	// DefaultStorageKey is the fixed name the session record is persisted
	// under.
	DefaultStorageKey = "ui_axon_auth"

	// DefaultRefreshThreshold is the window before access-token expiry in
	// which a proactive refresh is scheduled.
	DefaultRefreshThreshold = 5 * time.Minute
)

var (
	// ErrMissingRefreshToken is returned by RefreshTokens when no refresh
	// token is held. State is left unchanged.
	ErrMissingRefreshToken = errors.New("session: no refresh token available")

	// ErrNotAuthenticated is returned by operations that need an access
	// token when none is held. State is left unchanged.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// API is the remote auth client the manager drives. *authapi.Client
// implements it; tests substitute fakes.
type API interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Me(ctx context.Context, accessToken string) (*domain.User, error)
	UpdateProfile(ctx context.Context, accessToken string, upd domain.ProfileUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Sessions(ctx context.Context, accessToken string) ([]domain.SessionInfo, error)
	RevokeSession(ctx context.Context, accessToken string, id uuid.UUID) error
	RevokeAllSessions(ctx context.Context, accessToken string) error
}

// Manager is the session store. All state transitions run under one mutex
// and complete (including persistence) before listeners are notified, so no
// reader ever observes a partial update.
type Manager struct {
	api        API
	store      storage.Store
	storageKey string
	threshold  time.Duration
	sched      Scheduler
	now        func() time.Time

	mu            sync.Mutex
	state         State
	cancelRefresh func()

	bus *emitter
}

type Option func(*Manager)

// WithScheduler replaces the refresh-timer scheduler (tests).
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithStorageKey overrides the persistence key, e.g. to keep several
// profiles side by side.
func WithStorageKey(key string) Option {
	return func(m *Manager) { m.storageKey = key }
}

// WithRefreshThreshold overrides the proactive-refresh window.
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) { m.threshold = d }
}

func NewManager(api API, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		api:        api,
		store:      store,
		storageKey: DefaultStorageKey,
		threshold:  DefaultRefreshThreshold,
		sched:      TimerScheduler{},
		now:        time.Now,
		bus:        newEmitter(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns an immutable copy of the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers a listener for state changes and returns its
// unsubscribe func.
func (m *Manager) Subscribe(fn Listener) func() {
	return m.bus.subscribe(fn)
}

// Close cancels any pending refresh timer. The manager is unusable for
// scheduled refreshes afterwards; call on application shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRefreshLocked()
}

// Login authenticates with credentials. On success the whole state is
// replaced, persisted and the refresh timer armed; on failure only the error
// message is recorded and the error returned.
func (m *Manager) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	m.commit(func() {
		m.state.Loading = true
		m.state.Err = ""
	})

	resp, err := m.api.Login(ctx, req)
	if err != nil {
		m.recordFailure(err)
		return nil, err
	}
	return m.completeAuth(ctx, resp), nil
}

// Register creates an account; the contract mirrors Login.
func (m *Manager) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	m.commit(func() {
		m.state.Loading = true
		m.state.Err = ""
	})

	resp, err := m.api.Register(ctx, req)
	if err != nil {
		m.recordFailure(err)
		return nil, err
	}
	return m.completeAuth(ctx, resp), nil
}

// Logout notifies the server best-effort, then unconditionally clears local
// state, cancels the refresh timer and wipes the persisted record. Local
// logout always succeeds.
func (m *Manager) Logout(ctx context.Context) {
	if refresh := m.refreshToken(); refresh != "" {
		if err := m.api.Logout(ctx, refresh); err != nil {
			log.Printf("session: server logout notification failed: %v", err)
		}
	}
	m.clear(ctx, "")
}

// RefreshTokens exchanges the held refresh token for a new pair. Failure
// clears all auth state; success replaces only the token pair, persists and
// re-arms the timer.
func (m *Manager) RefreshTokens(ctx context.Context) error {
	refresh := m.refreshToken()
	if refresh == "" {
		return ErrMissingRefreshToken
	}

	tokens, err := m.api.Refresh(ctx, refresh)
	if err != nil {
		m.clear(ctx, err.Error())
		return err
	}
	normalizeTokens(tokens)

	m.commit(func() {
		m.state.Tokens = tokens.Clone()
		m.state.Authenticated = m.state.User != nil
		m.state.Err = ""
		m.armRefreshLocked(m.state.Tokens)
		m.persistLocked(ctx)
	})
	return nil
}

// CurrentUser fetches the identity from the server and replaces the user
// snapshot. A failure is treated like an invalid session: all auth state is
// cleared and the error returned.
func (m *Manager) CurrentUser(ctx context.Context) (*domain.User, error) {
	token := m.accessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := m.api.Me(ctx, token)
	if err != nil {
		m.clear(ctx, err.Error())
		return nil, err
	}

	m.commit(func() {
		m.state.User = user.Clone()
		m.state.Authenticated = m.state.Tokens != nil
		m.persistLocked(ctx)
	})
	return user, nil
}

// UpdateProfile pushes a partial user update and replaces the stored user on
// success. Failure is not authentication-relevant and leaves state untouched.
func (m *Manager) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) (*domain.User, error) {
	token := m.accessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := m.api.UpdateProfile(ctx, token, upd)
	if err != nil {
		return nil, err
	}

	m.commit(func() {
		m.state.User = user.Clone()
		m.persistLocked(ctx)
	})
	return user, nil
}

func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	token := m.accessToken()
	if token == "" {
		return ErrNotAuthenticated
	}
	return m.api.ChangePassword(ctx, token, currentPassword, newPassword)
}

func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	return m.api.ForgotPassword(ctx, email)
}

func (m *Manager) ResetPassword(ctx context.Context, token, password string) error {
	return m.api.ResetPassword(ctx, token, password)
}

// Sessions lists the active server-side sessions for the current user.
func (m *Manager) Sessions(ctx context.Context) ([]domain.SessionInfo, error) {
	token := m.accessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return m.api.Sessions(ctx, token)
}

// RevokeSession revokes one server-side session by ID.
func (m *Manager) RevokeSession(ctx context.Context, id uuid.UUID) error {
	token := m.accessToken()
	if token == "" {
		return ErrNotAuthenticated
	}
	return m.api.RevokeSession(ctx, token, id)
}

// RevokeAllSessions revokes every server-side session, then clears local
// state like a logout.
func (m *Manager) RevokeAllSessions(ctx context.Context) error {
	token := m.accessToken()
	if token == "" {
		return ErrNotAuthenticated
	}
	if err := m.api.RevokeAllSessions(ctx, token); err != nil {
		return err
	}
	m.clear(ctx, "")
	return nil
}

// HasPermission reports whether the authenticated user holds the permission.
// Always false when unauthenticated; never panics.
func (m *Manager) HasPermission(permission string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Authenticated && m.state.User != nil && m.state.User.HasPermission(permission)
}

// HasRole reports whether the authenticated user holds the role.
func (m *Manager) HasRole(role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Authenticated && m.state.User != nil && m.state.User.HasRole(role)
}

// HasAnyPermission reports whether the user holds at least one of the given
// permissions.
func (m *Manager) HasAnyPermission(permissions ...string) bool {
	for _, p := range permissions {
		if m.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every given permission.
func (m *Manager) HasAllPermissions(permissions ...string) bool {
	for _, p := range permissions {
		if !m.HasPermission(p) {
			return false
		}
	}
	return true
}

// completeAuth installs a successful login/register response: replace state
// wholesale, persist, arm the refresh timer, notify.
func (m *Manager) completeAuth(ctx context.Context, resp *domain.AuthResponse) *domain.User {
	normalizeTokens(resp.Tokens)
	m.commit(func() {
		m.state = State{
			User:          resp.User.Clone(),
			Tokens:        resp.Tokens.Clone(),
			Authenticated: true,
		}
		m.armRefreshLocked(m.state.Tokens)
		m.persistLocked(ctx)
	})
	return resp.User.Clone()
}

// recordFailure stores the error message without touching user or tokens.
func (m *Manager) recordFailure(err error) {
	m.commit(func() {
		m.state.Loading = false
		m.state.Err = err.Error()
	})
}

// clear cancels the timer, resets state to empty (keeping only errMsg) and
// wipes the persisted record.
func (m *Manager) clear(ctx context.Context, errMsg string) {
	m.commit(func() {
		m.cancelRefreshLocked()
		m.state = State{Err: errMsg}
		m.wipeLocked(ctx)
	})
}

// commit runs fn under the state mutex, then notifies listeners with the
// resulting snapshot. Listener notification happens strictly after the
// transition (and any persistence inside fn) has completed.
func (m *Manager) commit(fn func()) {
	m.mu.Lock()
	fn()
	snap := m.state.clone()
	m.mu.Unlock()

	m.bus.notify(snap)
}

// armRefreshLocked schedules the next refresh. At most one timer is
// outstanding; arming cancels the prior one. A token already inside the
// threshold (or expired) triggers an immediate refresh.
func (m *Manager) armRefreshLocked(tokens *domain.TokenPair) {
	m.cancelRefreshLocked()
	if tokens == nil {
		return
	}

	delay := tokens.ExpiresAt.Sub(m.now()) - m.threshold
	if delay < 0 {
		delay = 0
	}
	m.cancelRefresh = m.sched.Schedule(delay, m.scheduledRefresh)
}

func (m *Manager) cancelRefreshLocked() {
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
}

// scheduledRefresh is the timer callback. A failure inside RefreshTokens
// already cascaded into a full logout; here it is only logged.
func (m *Manager) scheduledRefresh() {
	if err := m.RefreshTokens(context.Background()); err != nil {
		log.Printf("session: scheduled token refresh failed: %v", err)
	}
}

// persistLocked writes {tokens, user} under the storage key. Persistence is
// best-effort: failures are logged, never propagated.
func (m *Manager) persistLocked(ctx context.Context) {
	data, err := json.Marshal(record{Tokens: m.state.Tokens, User: m.state.User})
	if err != nil {
		log.Printf("session: failed to encode persisted state: %v", err)
		return
	}
	if err := m.store.Set(ctx, m.storageKey, data); err != nil {
		log.Printf("session: failed to persist state: %v", err)
	}
}

// wipeLocked removes the persisted record, best-effort.
func (m *Manager) wipeLocked(ctx context.Context) {
	if err := m.store.Delete(ctx, m.storageKey); err != nil {
		log.Printf("session: failed to clear persisted state: %v", err)
	}
}

func (m *Manager) accessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Tokens == nil {
		return ""
	}
	return m.state.Tokens.AccessToken
}

func (m *Manager) refreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Tokens == nil {
		return ""
	}
	return m.state.Tokens.RefreshToken
}

// normalizeTokens fills in missing metadata from the access token's own
// claims: servers that omit expires_at still get a usable refresh schedule.
func normalizeTokens(t *domain.TokenPair) {
	if t == nil {
		return
	}
	if t.TokenType == "" {
		t.TokenType = domain.TokenTypeBearer
	}
	if t.ExpiresAt.IsZero() {
		if claims, err := jwt.Inspect(t.AccessToken); err == nil && claims.ExpiresAt != nil {
			t.ExpiresAt = claims.ExpiresAt.Time
		}
	}
}
