// authctl drives the session SDK against a running auth server. The storage
// backend for the persisted session is picked via SESSION_STORAGE_BACKEND
// (memory, file, redis, postgres), so a login survives until the next
// invocation the same way a browser session would.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Badshah-h/ui-axon-auth/internal/config"
	"github.com/Badshah-h/ui-axon-auth/pkg/authapi"
	"github.com/Badshah-h/ui-axon-auth/pkg/domain"
	"github.com/Badshah-h/ui-axon-auth/pkg/session"
	"github.com/Badshah-h/ui-axon-auth/pkg/storage"
)

const usage = `usage: authctl <command> [args]

commands:
  register <email> <password> <first> <last>
  login <email> <password>
  whoami
  sessions
  revoke <session-id>
  revoke-all
  refresh
  logout
  watch`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	defer cleanup()

	client, err := authapi.NewClient(cfg.API.BaseURL,
		authapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	if err != nil {
		log.Fatalf("Failed to initialize auth client: %v", err)
	}

	mgr := session.NewManager(client, store,
		session.WithStorageKey(cfg.Session.StorageKey),
		session.WithRefreshThreshold(cfg.Session.RefreshThreshold),
	)
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Restore(ctx)

	if err := run(ctx, mgr, command, args); err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func run(ctx context.Context, mgr *session.Manager, command string, args []string) error {
	switch command {
	case "register":
		if len(args) != 4 {
			return fmt.Errorf("expected <email> <password> <first> <last>")
		}
		user, err := mgr.Register(ctx, domain.RegisterRequest{
			Email: args[0], Password: args[1], FirstName: args[2], LastName: args[3],
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered and signed in as %s (%s)\n", user.FullName(), user.Email)
		return nil

	case "login":
		if len(args) != 2 {
			return fmt.Errorf("expected <email> <password>")
		}
		user, err := mgr.Login(ctx, domain.LoginRequest{Email: args[0], Password: args[1]})
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s (%s)\n", user.FullName(), user.Email)
		return nil

	case "whoami":
		state := mgr.State()
		if !state.Authenticated {
			fmt.Println("not signed in")
			return nil
		}
		user, err := mgr.CurrentUser(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", user.FullName(), user.Email)
		fmt.Printf("  roles: %v\n  permissions: %v\n", user.Roles, user.Permissions)
		fmt.Printf("  access token expires at %s\n", state.Tokens.ExpiresAt.Format(time.RFC3339))
		return nil

	case "sessions":
		sessions, err := mgr.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			marker := " "
			if s.Current {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  last seen %s\n", marker, s.ID, s.IPAddress,
				s.LastSeenAt.Format(time.RFC3339))
		}
		return nil

	case "revoke":
		if len(args) != 1 {
			return fmt.Errorf("expected <session-id>")
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		if err := mgr.RevokeSession(ctx, id); err != nil {
			return err
		}
		fmt.Println("session revoked")
		return nil

	case "revoke-all":
		if err := mgr.RevokeAllSessions(ctx); err != nil {
			return err
		}
		fmt.Println("all sessions revoked; signed out locally")
		return nil

	case "refresh":
		if err := mgr.RefreshTokens(ctx); err != nil {
			return err
		}
		fmt.Printf("tokens refreshed; new expiry %s\n",
			mgr.State().Tokens.ExpiresAt.Format(time.RFC3339))
		return nil

	case "logout":
		mgr.Logout(ctx)
		fmt.Println("signed out")
		return nil

	case "watch":
		unsubscribe := mgr.Subscribe(func(s session.State) {
			switch {
			case s.Loading:
				log.Println("state: loading")
			case s.Authenticated:
				log.Printf("state: authenticated as %s (token expires %s)",
					s.User.Email, s.Tokens.ExpiresAt.Format(time.RFC3339))
			case s.Err != "":
				log.Printf("state: error: %s", s.Err)
			default:
				log.Println("state: signed out")
			}
		})
		defer unsubscribe()

		log.Println("watching session state; Ctrl-C to stop")
		<-ctx.Done()
		return nil

	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// buildStore wires the configured persistence backend, verifying
// connectivity for the networked ones.
func buildStore(cfg *config.Config) (storage.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), noop, nil

	case "file":
		store, err := storage.NewFileStore(cfg.Storage.FileDir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to ping Redis: %w", err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				log.Printf("Error closing Redis connection: %v", err)
			}
		}
		return storage.NewRedisStore(client), cleanup, nil

	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		store := storage.NewPostgresStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		cleanup := func() {
			if err := db.Close(); err != nil {
				log.Printf("Error closing database connection: %v", err)
			}
		}
		return store, cleanup, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
