// Package stub is a self-contained development auth server implementing the
// ui-axon auth wire contract in memory: argon2id credentials, RS256 tokens
// signed with an ephemeral key, refresh-token rotation and per-session
// tracking. It exists so the SDK can be exercised without the production
// backend; it is not that backend.
package stub

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/Badshah-h/ui-axon-auth/pkg/email"
	"github.com/Badshah-h/ui-axon-auth/pkg/jwt"
	"github.com/Badshah-h/ui-axon-auth/pkg/validator"
)

type Options struct {
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	ResetExpiry   time.Duration
	Mail          email.Sender
}

type Server struct {
	app      *fiber.App
	store    *memoryStore
	tokens   *jwt.TokenService
	validate *validator.Validator
	mail     email.Sender
	opts     Options
}

func New(opts Options) (*Server, error) {
	if opts.Issuer == "" {
		opts.Issuer = "ui-axon-stub"
	}
	if opts.AccessExpiry == 0 {
		opts.AccessExpiry = 15 * time.Minute
	}
	if opts.RefreshExpiry == 0 {
		opts.RefreshExpiry = 7 * 24 * time.Hour
	}
	if opts.ResetExpiry == 0 {
		opts.ResetExpiry = time.Hour
	}
	if opts.Mail == nil {
		opts.Mail = email.LogSender{}
	}

	// Ephemeral signing key: tokens do not survive a stub restart.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	tokens, err := jwt.NewTokenService(key, opts.AccessExpiry, opts.RefreshExpiry, opts.Issuer)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:    newMemoryStore(),
		tokens:   tokens,
		validate: validator.New(),
		mail:     opts.Mail,
		opts:     opts,
	}

	app := fiber.New(fiber.Config{
		AppName:      "ui-axon auth stub",
		ErrorHandler: errorHandler,
	})
	app.Use(recoveryMiddleware())
	app.Use(loggerMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE",
		AllowHeaders: "Content-Type,Authorization",
	}))

	s.routes(app)
	s.app = app
	return s, nil
}

func (s *Server) routes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := app.Group("/auth")
	auth.Post("/login", s.login)
	auth.Post("/register", s.register)
	auth.Post("/logout", s.logout)
	auth.Post("/refresh", s.refresh)
	auth.Post("/forgot-password", s.forgotPassword)
	auth.Post("/reset-password", s.resetPassword)

	authed := auth.Group("", s.requireAuth)
	authed.Get("/me", s.me)
	authed.Put("/profile", s.updateProfile)
	authed.Post("/change-password", s.changePassword)
	authed.Get("/sessions", s.listSessions)
	authed.Delete("/sessions/:id", s.revokeSession)
	authed.Post("/revoke-all-sessions", s.revokeAll)
}

// App exposes the Fiber app for in-process tests (app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	log.Printf("Error handling request [%s %s]: %v", c.Method(), c.Path(), err)

	return c.Status(code).JSON(fiber.Map{"error": message})
}
