package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityStore owns durable account state and credential verification.
// Implementations must guarantee at most one account per normalized email
// under concurrent creation attempts.
type IdentityStore interface {
	// CreateAccount persists a new account. An empty password creates an
	// account without a local credential (federated sign up).
	CreateAccount(ctx context.Context, profile AccountProfile, password string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// CheckPassword fails with ErrMismatchedHashAndPassword on a nil
	// account after doing the same work as a real comparison.
	CheckPassword(ctx context.Context, account *Account, password string) error
	GenerateConfirmationToken(ctx context.Context, account *Account) (string, error)
	ConfirmEmail(ctx context.Context, account *Account, token string) error
	RecordSignIn(ctx context.Context, account *Account) error
}

// MailGateway delivers an HTML message to a single recipient.
type MailGateway interface {
	Send(ctx context.Context, toEmail, subject, htmlBody string) error
}

// OAuthIdentity is the (email, name) pair asserted by a federated provider.
type OAuthIdentity struct {
	Email string
	Name  string
}

// OAuthProvider runs the redirect based authorization code handshake.
type OAuthProvider interface {
	Name() string
	// AuthCodeURL returns the provider authorization endpoint the client
	// should be redirected to. callbackURL is where the provider returns.
	AuthCodeURL(ctx context.Context, callbackURL string) (string, error)
	// Complete exchanges the callback parameters for the asserted identity.
	Complete(ctx context.Context, code, state string) (*OAuthIdentity, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
