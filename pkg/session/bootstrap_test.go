package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
	"github.com/Badshah-h/ui-axon-auth/pkg/session"
	"github.com/Badshah-h/ui-axon-auth/pkg/storage"
)

func seedStore(t *testing.T, store storage.Store, tokens *domain.TokenPair, user *domain.User) {
	t.Helper()
	data, err := json.Marshal(struct {
		Tokens *domain.TokenPair `json:"tokens,omitempty"`
		User   *domain.User      `json:"user,omitempty"`
	}{tokens, user})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(context.Background(), session.DefaultStorageKey, data); err != nil {
		t.Fatal(err)
	}
}

func restoreManager(api *fakeAPI, store storage.Store) (*session.Manager, *fakeScheduler) {
	sched := &fakeScheduler{}
	mgr := session.NewManager(api, store,
		session.WithScheduler(sched),
		session.WithClock(func() time.Time { return baseTime }),
	)
	return mgr, sched
}

func TestRestoreNoPersistedSession(t *testing.T) {
	api := &fakeAPI{}
	store := storage.NewMemoryStore()
	mgr, sched := restoreManager(api, store)

	if mgr.Restore(context.Background()) {
		t.Fatal("Restore = true with empty storage")
	}
	state := mgr.State()
	if state.Authenticated || state.Loading {
		t.Errorf("unexpected state: %+v", state)
	}
	if sched.scheduled() != 0 {
		t.Error("timer armed without a session")
	}
}

func TestRestoreValidTokens(t *testing.T) {
	api := &fakeAPI{
		meFn: func(_ context.Context, accessToken string) (*domain.User, error) {
			if accessToken != "access-1" {
				return nil, errors.New("wrong token presented")
			}
			return testUser(), nil
		},
	}
	store := storage.NewMemoryStore()
	seedStore(t, store, tokenPair("1", baseTime.Add(time.Hour)), testUser())
	mgr, sched := restoreManager(api, store)

	if !mgr.Restore(context.Background()) {
		t.Fatal("Restore = false with valid tokens")
	}
	state := mgr.State()
	if !state.Authenticated || state.Loading {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.User.Email != "dev@example.com" {
		t.Errorf("user not restored: %+v", state.User)
	}
	if delay, _ := sched.lastDelay(); delay != 55*time.Minute {
		t.Errorf("timer delay = %v, want 55m", delay)
	}
}

func TestRestoreRejectedTokenFallsBackToRefresh(t *testing.T) {
	api := &fakeAPI{
		meFn: func(context.Context, string) (*domain.User, error) {
			return nil, errors.New("token revoked server-side")
		},
		refreshFn: func(context.Context, string) (*domain.TokenPair, error) {
			return tokenPair("2", baseTime.Add(time.Hour)), nil
		},
	}
	store := storage.NewMemoryStore()
	seedStore(t, store, tokenPair("1", baseTime.Add(time.Hour)), testUser())
	mgr, _ := restoreManager(api, store)

	if !mgr.Restore(context.Background()) {
		t.Fatal("Restore = false despite successful refresh")
	}
	if state := mgr.State(); state.Tokens.AccessToken != "access-2" {
		t.Errorf("refreshed tokens not installed: %+v", state.Tokens)
	}
}

func TestRestoreExpiredWithRefreshToken(t *testing.T) {
	api := &fakeAPI{
		refreshFn: func(_ context.Context, refreshToken string) (*domain.TokenPair, error) {
			if refreshToken != "refresh-1" {
				return nil, errors.New("wrong refresh token")
			}
			return tokenPair("2", baseTime.Add(time.Hour)), nil
		},
	}
	store := storage.NewMemoryStore()
	seedStore(t, store, tokenPair("1", baseTime.Add(-time.Minute)), testUser())
	mgr, sched := restoreManager(api, store)

	if !mgr.Restore(context.Background()) {
		t.Fatal("Restore = false despite refreshable session")
	}
	state := mgr.State()
	if !state.Authenticated || state.Loading {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.Tokens.RefreshToken != "refresh-2" {
		t.Errorf("tokens not rotated: %+v", state.Tokens)
	}
	if sched.scheduled() == 0 {
		t.Error("timer not armed after restore refresh")
	}
}

func TestRestoreExpiredWithoutRefreshToken(t *testing.T) {
	api := &fakeAPI{}
	store := storage.NewMemoryStore()
	expired := tokenPair("1", baseTime.Add(-time.Minute))
	expired.RefreshToken = ""
	seedStore(t, store, expired, testUser())
	mgr, _ := restoreManager(api, store)

	if mgr.Restore(context.Background()) {
		t.Fatal("Restore = true without any refresh token")
	}
	state := mgr.State()
	if state.Authenticated || state.Loading || state.User != nil || state.Tokens != nil {
		t.Errorf("state not cleared: %+v", state)
	}
	if _, err := store.Get(context.Background(), session.DefaultStorageKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expired session not wiped from storage")
	}
	if api.refreshCalls() != 0 {
		t.Error("refresh attempted without a refresh token")
	}
}

func TestRestoreRefreshFailure(t *testing.T) {
	api := &fakeAPI{
		refreshFn: func(context.Context, string) (*domain.TokenPair, error) {
			return nil, errors.New("refresh token expired")
		},
	}
	store := storage.NewMemoryStore()
	seedStore(t, store, tokenPair("1", baseTime.Add(-time.Minute)), testUser())
	mgr, _ := restoreManager(api, store)

	if mgr.Restore(context.Background()) {
		t.Fatal("Restore = true despite refresh failure")
	}
	if state := mgr.State(); state.Authenticated || state.Loading {
		t.Errorf("unexpected state: %+v", state)
	}
	if _, err := store.Get(context.Background(), session.DefaultStorageKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("storage not wiped after failed restore")
	}
}

func TestRestoreCorruptRecord(t *testing.T) {
	api := &fakeAPI{}
	store := storage.NewMemoryStore()
	if err := store.Set(context.Background(), session.DefaultStorageKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	mgr, _ := restoreManager(api, store)

	if mgr.Restore(context.Background()) {
		t.Fatal("Restore = true with corrupt record")
	}
	if state := mgr.State(); state.Authenticated || state.Loading {
		t.Errorf("unexpected state: %+v", state)
	}
	if _, err := store.Get(context.Background(), session.DefaultStorageKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("corrupt record left in storage")
	}
}

func TestPersistedSessionRoundTrips(t *testing.T) {
	api := &fakeAPI{}
	loginOK(api, tokenPair("1", baseTime.Add(time.Hour)))
	api.meFn = func(context.Context, string) (*domain.User, error) {
		return testUser(), nil
	}
	store := storage.NewMemoryStore()
	sched := &fakeScheduler{}
	mgr := session.NewManager(api, store,
		session.WithScheduler(sched),
		session.WithClock(func() time.Time { return baseTime }),
	)

	if _, err := mgr.Login(context.Background(), domain.LoginRequest{
		Email: "dev@example.com", Password: "password123",
	}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	first := mgr.State()

	// A second process starts from the same store.
	mgr2, _ := restoreManager(api, store)
	if !mgr2.Restore(context.Background()) {
		t.Fatal("Restore = false for a freshly persisted session")
	}
	second := mgr2.State()

	a, err := json.Marshal(first.Tokens)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(second.Tokens)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("tokens did not round-trip:\n%s\n%s", a, b)
	}
	if first.User.ID != second.User.ID || first.User.Email != second.User.Email {
		t.Errorf("user did not round-trip: %+v vs %+v", first.User, second.User)
	}
}
