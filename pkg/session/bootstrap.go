package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/Badshah-h/ui-axon-auth/pkg/storage"
)

// Restore loads the persisted session and brings the manager to a definite
// state: authenticated (valid or refreshable tokens) or unauthenticated
// (everything else, including corrupt data and server rejections). It never
// returns an error and never leaves the manager loading; call it once at
// application startup.
//
// The path is: unexpired tokens → confirm identity with the server; expired
// tokens with a refresh token → refresh; anything else → cleared state.
func (m *Manager) Restore(ctx context.Context) bool {
	m.commit(func() {
		m.state.Loading = true
		m.state.Err = ""
	})

	rec := m.loadRecord(ctx)
	if rec == nil || rec.Tokens == nil || rec.Tokens.AccessToken == "" {
		m.clear(ctx, "")
		return false
	}
	normalizeTokens(rec.Tokens)

	if !rec.Tokens.Expired(m.now()) {
		// Optimistically authenticated while the server confirms; consumers
		// can render the persisted user immediately.
		m.commit(func() {
			m.state = State{
				User:          rec.User.Clone(),
				Tokens:        rec.Tokens.Clone(),
				Authenticated: true,
				Loading:       true,
			}
		})

		user, err := m.api.Me(ctx, rec.Tokens.AccessToken)
		if err == nil {
			m.commit(func() {
				m.state.User = user.Clone()
				m.state.Loading = false
				m.armRefreshLocked(m.state.Tokens)
				m.persistLocked(ctx)
			})
			return true
		}
		log.Printf("session: restored token rejected, falling back to refresh: %v", err)
	}

	if rec.Tokens.RefreshToken == "" {
		m.clear(ctx, "")
		return false
	}

	tokens, err := m.api.Refresh(ctx, rec.Tokens.RefreshToken)
	if err != nil {
		log.Printf("session: restore refresh failed: %v", err)
		m.clear(ctx, "")
		return false
	}
	normalizeTokens(tokens)

	user := rec.User
	if user == nil {
		user, err = m.api.Me(ctx, tokens.AccessToken)
		if err != nil {
			m.clear(ctx, "")
			return false
		}
	}

	m.commit(func() {
		m.state = State{
			User:          user.Clone(),
			Tokens:        tokens.Clone(),
			Authenticated: true,
		}
		m.armRefreshLocked(m.state.Tokens)
		m.persistLocked(ctx)
	})
	return true
}

// loadRecord reads the persisted {tokens, user} blob. Missing and corrupt
// data both come back as nil; corrupt data is wiped so the next start is
// clean.
func (m *Manager) loadRecord(ctx context.Context) *record {
	data, err := m.store.Get(ctx, m.storageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Printf("session: failed to load persisted state: %v", err)
		return nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("session: discarding corrupt persisted state: %v", err)
		if err := m.store.Delete(ctx, m.storageKey); err != nil {
			log.Printf("session: failed to clear corrupt state: %v", err)
		}
		return nil
	}
	return &rec
}
