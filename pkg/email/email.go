// Package email delivers the password-reset mail the stub auth server sends.
package email

import (
	"context"
	"log"
)

// Sender delivers a password-reset token to a user.
type Sender interface {
	SendPasswordResetEmail(ctx context.Context, to, name, token string) error
}

// Config holds sender configuration.
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	ResetURL  string
}

// LogSender is the fallback used when no provider is configured: it logs the
// reset token instead of delivering it. Development only.
type LogSender struct{}

func (LogSender) SendPasswordResetEmail(_ context.Context, to, name, token string) error {
	log.Printf("[EMAIL] password reset for %s (%s): token=%s", name, to, token)
	return nil
}
