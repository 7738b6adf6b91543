package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Badshah-h/ui-axon-auth/internal/config"
	"github.com/Badshah-h/ui-axon-auth/internal/stub"
	"github.com/Badshah-h/ui-axon-auth/pkg/email"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mail := buildMailSender(cfg)

	server, err := stub.New(stub.Options{
		Issuer:        cfg.Stub.Issuer,
		AccessExpiry:  cfg.Stub.AccessExpiry,
		RefreshExpiry: cfg.Stub.RefreshExpiry,
		ResetExpiry:   cfg.Stub.ResetExpiry,
		Mail:          mail,
	})
	if err != nil {
		log.Fatalf("Failed to initialize stub server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Stub.Port)
		log.Printf("Auth stub listening on http://localhost%s", addr)
		if err := server.Listen(addr); err != nil {
			log.Printf("Server failed to start: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down stub server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func buildMailSender(cfg *config.Config) email.Sender {
	if !cfg.Email.Enabled {
		log.Println("Email delivery disabled; reset tokens will be logged")
		return email.LogSender{}
	}

	sender, err := email.NewResendSender(email.Config{
		APIKey:    cfg.Email.APIKey,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
		ResetURL:  cfg.Email.ResetURL,
	})
	if err != nil {
		log.Printf("Warning: failed to initialize Resend sender: %v", err)
		log.Println("Falling back to logged reset tokens")
		return email.LogSender{}
	}
	log.Println("Email delivery via Resend enabled")
	return sender
}
