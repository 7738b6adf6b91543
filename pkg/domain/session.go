package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionInfo describes one active server-side session, as returned by
// GET /auth/sessions.
type SessionInfo struct {
	ID         uuid.UUID `json:"id"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Current    bool      `json:"current"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
