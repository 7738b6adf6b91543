package domain

import "time"

// TokenTypeBearer is the only token type the auth API issues.
const TokenTypeBearer = "Bearer"

// TokenPair is issued wholesale by the auth server and replaced wholesale on
// refresh; fields are never mutated individually.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// Expired reports whether the access token has expired at the given instant.
func (t *TokenPair) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// ExpiresWithin reports whether the access token expires within d of now.
func (t *TokenPair) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(d))
}

// Clone returns a copy so snapshot readers cannot alias manager-owned state.
func (t *TokenPair) Clone() *TokenPair {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
