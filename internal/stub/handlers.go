package stub

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
	"github.com/Badshah-h/ui-axon-auth/pkg/hash"
	"github.com/Badshah-h/ui-axon-auth/pkg/jwt"
)

var defaultPermissions = []string{"workflows:read", "workflows:write", "executions:read"}

// POST /auth/login
func (s *Server) login(c *fiber.Ctx) error {
	var req domain.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	candidate, passwordHash, err := s.store.credentialsByEmail(req.Email)
	if err != nil {
		return unauthorized(c, "invalid credentials")
	}
	ok, err := hash.VerifyPassword(req.Password, passwordHash)
	if err != nil || !ok {
		return unauthorized(c, "invalid credentials")
	}

	now := time.Now()
	user, err := s.store.updateUser(candidate.ID, func(u *domain.User) {
		u.LastLoginAt = &now
	})
	if err != nil {
		return unauthorized(c, "invalid credentials")
	}

	resp, err := s.issueSession(c, user)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to issue tokens")
	}
	return c.JSON(resp)
}

// POST /auth/register
func (s *Server) register(c *fiber.Ctx) error {
	var req domain.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	passwordHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	now := time.Now()
	user := domain.User{
		ID:          uuid.New(),
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Status:      domain.UserStatusActive,
		Roles:       []string{"user"},
		Permissions: append([]string(nil), defaultPermissions...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.createAccount(user, passwordHash); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	resp, err := s.issueSession(c, &user)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to issue tokens")
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// POST /auth/logout
func (s *Server) logout(c *fiber.Ctx) error {
	var req domain.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.RefreshToken != "" {
		s.store.deleteSessionByTokenHash(hashToken(req.RefreshToken))
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

// POST /auth/refresh
func (s *Server) refresh(c *fiber.Ctx) error {
	var req domain.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	claims, err := s.tokens.ValidateToken(req.RefreshToken)
	if err != nil || claims.TokenType != "refresh" {
		return unauthorized(c, "invalid refresh token")
	}

	sess, err := s.store.sessionByTokenHash(hashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, errSessionExpired) {
			return unauthorized(c, "session expired")
		}
		return unauthorized(c, "session not found")
	}

	user, err := s.store.userByID(sess.userID)
	if err != nil {
		return unauthorized(c, "account not found")
	}

	pair, err := s.tokens.GeneratePair(user, sess.id)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to issue tokens")
	}
	if err := s.store.rotateSession(sess.id, hashToken(pair.RefreshToken), time.Now().Add(s.opts.RefreshExpiry)); err != nil {
		return unauthorized(c, "session not found")
	}

	return c.JSON(domain.RefreshResponse{Tokens: pair})
}

// GET /auth/me
func (s *Server) me(c *fiber.Ctx) error {
	claims := c.Locals(claimsKey).(*jwt.Claims)
	user, err := s.store.userByID(claims.UserID)
	if err != nil {
		return unauthorized(c, "account not found")
	}
	return c.JSON(user)
}

// PUT /auth/profile
func (s *Server) updateProfile(c *fiber.Ctx) error {
	claims := c.Locals(claimsKey).(*jwt.Claims)

	var upd domain.ProfileUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := s.store.updateUser(claims.UserID, func(u *domain.User) {
		if upd.FirstName != nil {
			u.FirstName = *upd.FirstName
		}
		if upd.LastName != nil {
			u.LastName = *upd.LastName
		}
		if upd.Preferences != nil {
			if u.Preferences == nil {
				u.Preferences = make(map[string]string)
			}
			for k, v := range upd.Preferences {
				u.Preferences[k] = v
			}
		}
	})
	if err != nil {
		return unauthorized(c, "account not found")
	}
	return c.JSON(user)
}

// POST /auth/change-password
func (s *Server) changePassword(c *fiber.Ctx) error {
	claims := c.Locals(claimsKey).(*jwt.Claims)

	var req domain.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	passwordHash, err := s.store.passwordHashByID(claims.UserID)
	if err != nil {
		return unauthorized(c, "account not found")
	}
	ok, err := hash.VerifyPassword(req.CurrentPassword, passwordHash)
	if err != nil || !ok {
		return unauthorized(c, "invalid credentials")
	}

	newHash, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := s.store.setPassword(claims.UserID, newHash); err != nil {
		return unauthorized(c, "account not found")
	}

	// Other devices must re-authenticate; the session that changed the
	// password stays alive.
	s.store.deleteSessions(claims.UserID, claims.SessionID)
	return c.JSON(fiber.Map{"message": "password changed"})
}

// POST /auth/forgot-password
func (s *Server) forgotPassword(c *fiber.Ctx) error {
	var req domain.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	// Same response whether or not the account exists.
	if user, _, err := s.store.credentialsByEmail(req.Email); err == nil {
		token := uuid.New().String()
		s.store.setResetToken(token, user.ID, time.Now().Add(s.opts.ResetExpiry))
		if err := s.mail.SendPasswordResetEmail(c.Context(), user.Email, user.FullName(), token); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to send reset email")
		}
	}
	return c.JSON(fiber.Map{"message": "reset email sent if the account exists"})
}

// POST /auth/reset-password
func (s *Server) resetPassword(c *fiber.Ctx) error {
	var req domain.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.validate.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	userID, err := s.store.consumeResetToken(req.Token)
	if err != nil {
		return badRequest(c, err.Error())
	}

	newHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := s.store.setPassword(userID, newHash); err != nil {
		return badRequest(c, "account not found")
	}

	// A reset invalidates every existing session.
	s.store.deleteSessions(userID, uuid.Nil)
	return c.JSON(fiber.Map{"message": "password reset"})
}

// GET /auth/sessions
func (s *Server) listSessions(c *fiber.Ctx) error {
	claims := c.Locals(claimsKey).(*jwt.Claims)

	sessions := s.store.sessionsForUser(claims.UserID)
	out := make([]domain.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, domain.SessionInfo{
			ID:         sess.id,
			UserAgent:  sess.userAgent,
			IPAddress:  sess.ipAddress,
			Current:    sess.id == claims.SessionID,
			CreatedAt:  sess.createdAt,
			LastSeenAt: sess.lastSeenAt,
			ExpiresAt:  sess.expiresAt,
		})
	}
	return c.JSON(out)
}

// DELETE /auth/sessions/:id
func (s *Server) revokeSession(c *fiber.Ctx) error {
	claims := c.Locals(claimsKey).(*jwt.Claims)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid session id")
	}
	if err := s.store.deleteSession(id, claims.UserID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "session revoked"})
}

// POST /auth/revoke-all-sessions
func (s *Server) revokeAll(c *fiber.Ctx) error {
	claims := c.Locals(claimsKey).(*jwt.Claims)
	s.store.deleteSessions(claims.UserID, uuid.Nil)
	return c.JSON(fiber.Map{"message": "all sessions revoked"})
}

// issueSession creates a tracked session and a token pair bound to it.
func (s *Server) issueSession(c *fiber.Ctx, user *domain.User) (*domain.AuthResponse, error) {
	sessionID := uuid.New()
	pair, err := s.tokens.GeneratePair(user, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.store.createSession(&serverSession{
		id:               sessionID,
		userID:           user.ID,
		refreshTokenHash: hashToken(pair.RefreshToken),
		userAgent:        c.Get("User-Agent"),
		ipAddress:        c.IP(),
		createdAt:        now,
		lastSeenAt:       now,
		expiresAt:        now.Add(s.opts.RefreshExpiry),
	})

	return &domain.AuthResponse{User: user, Tokens: pair}, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}
