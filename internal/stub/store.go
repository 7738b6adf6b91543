package stub

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
)

var (
	errAccountExists   = errors.New("email already registered")
	errAccountNotFound = errors.New("account not found")
	errSessionNotFound = errors.New("session not found")
	errSessionExpired  = errors.New("session expired")
	errResetInvalid    = errors.New("invalid or expired reset token")
)

type account struct {
	user         domain.User
	passwordHash string
}

type serverSession struct {
	id               uuid.UUID
	userID           uuid.UUID
	refreshTokenHash string
	userAgent        string
	ipAddress        string
	createdAt        time.Time
	lastSeenAt       time.Time
	expiresAt        time.Time
}

type resetToken struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// memoryStore holds all stub-server state. Everything is lost on restart,
// which is the point of a development stub.
type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]*account // keyed by lowercased email
	byID     map[uuid.UUID]*account
	sessions map[uuid.UUID]*serverSession
	resets   map[string]resetToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts: make(map[string]*account),
		byID:     make(map[uuid.UUID]*account),
		sessions: make(map[uuid.UUID]*serverSession),
		resets:   make(map[string]resetToken),
	}
}

func (s *memoryStore) createAccount(user domain.User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.accounts[key]; ok {
		return errAccountExists
	}
	acc := &account{user: user, passwordHash: passwordHash}
	s.accounts[key] = acc
	s.byID[user.ID] = acc
	return nil
}

// credentialsByEmail returns a copy of the user and its password hash.
// Callers never see the live account, so no field read can race a writer.
func (s *memoryStore) credentialsByEmail(email string) (*domain.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return nil, "", errAccountNotFound
	}
	return acc.user.Clone(), acc.passwordHash, nil
}

func (s *memoryStore) passwordHashByID(id uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return "", errAccountNotFound
	}
	return acc.passwordHash, nil
}

func (s *memoryStore) userByID(id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, errAccountNotFound
	}
	return acc.user.Clone(), nil
}

func (s *memoryStore) updateUser(id uuid.UUID, mutate func(*domain.User)) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, errAccountNotFound
	}
	mutate(&acc.user)
	acc.user.UpdatedAt = time.Now()
	return acc.user.Clone(), nil
}

func (s *memoryStore) setPassword(id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return errAccountNotFound
	}
	acc.passwordHash = passwordHash
	acc.user.UpdatedAt = time.Now()
	return nil
}

func (s *memoryStore) createSession(sess *serverSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *memoryStore) sessionByTokenHash(hash string) (serverSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.refreshTokenHash == hash {
			if time.Now().After(sess.expiresAt) {
				delete(s.sessions, sess.id)
				return serverSession{}, errSessionExpired
			}
			return *sess, nil
		}
	}
	return serverSession{}, errSessionNotFound
}

// rotateSession swaps the refresh-token hash after a refresh and extends the
// session lifetime.
func (s *memoryStore) rotateSession(id uuid.UUID, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return errSessionNotFound
	}
	sess.refreshTokenHash = newHash
	sess.lastSeenAt = time.Now()
	sess.expiresAt = expiresAt
	return nil
}

func (s *memoryStore) deleteSessionByTokenHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.refreshTokenHash == hash {
			delete(s.sessions, id)
			return
		}
	}
}

func (s *memoryStore) deleteSession(id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.userID != userID {
		return errSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// deleteSessions removes every session of the user except the one in keep
// (pass uuid.Nil to remove all).
func (s *memoryStore) deleteSessions(userID, keep uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.userID == userID && id != keep {
			delete(s.sessions, id)
		}
	}
}

func (s *memoryStore) sessionsForUser(userID uuid.UUID) []*serverSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*serverSession
	for _, sess := range s.sessions {
		if sess.userID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out
}

func (s *memoryStore) setResetToken(token string, userID uuid.UUID, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[token] = resetToken{userID: userID, expiresAt: expiresAt}
}

func (s *memoryStore) consumeResetToken(token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.resets[token]
	if !ok {
		return uuid.Nil, errResetInvalid
	}
	delete(s.resets, token)
	if time.Now().After(rt.expiresAt) {
		return uuid.Nil, errResetInvalid
	}
	return rt.userID, nil
}

// hashToken fingerprints a refresh token so the raw value is never stored.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
