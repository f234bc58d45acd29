package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
)

const (
	// DefaultSessionContextKey is the router locals key holding *SessionClaims
	DefaultSessionContextKey = "session"
	defaultAuthScheme        = "Bearer"
)

// SessionValidator verifies a raw session token
type SessionValidator interface {
	ParseSessionToken(raw string) (*SessionClaims, error)
}

var _ SessionValidator = (*TokenIssuer)(nil)

// SessionConfig configures RequireSession
type SessionConfig struct {
	Validator  SessionValidator
	ContextKey string
	AuthScheme string
	// ErrorHandler renders rejected requests. Defaults to a 401 problem.
	ErrorHandler func(ctx router.Context, err error) error
}

// RequireSession rejects requests without a valid session token in the
// Authorization header and stores the claims in the request locals.
func RequireSession(cfg SessionConfig) router.MiddlewareFunc {
	if cfg.Validator == nil {
		panic("Missing session validator in session middleware...")
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultSessionContextKey
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = defaultAuthScheme
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return problem(ctx, http.StatusUnauthorized, MsgSessionInvalid)
		}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, ok := tokenFromHeader(ctx.GetString(fiber.HeaderAuthorization, ""), cfg.AuthScheme)
			if !ok {
				return cfg.ErrorHandler(ctx, NewSessionError("missing or malformed authorization header"))
			}

			claims, err := cfg.Validator.ParseSessionToken(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, claims)
			return next(ctx)
		}
	}
}

// SessionFromContext returns the claims stored by RequireSession
func SessionFromContext(ctx router.Context, key ...string) (*SessionClaims, bool) {
	k := DefaultSessionContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	claims, ok := ctx.Locals(k).(*SessionClaims)
	return claims, ok && claims != nil
}

func tokenFromHeader(header, scheme string) (string, bool) {
	l := len(scheme)
	if len(header) > l+1 && strings.EqualFold(header[:l], scheme) && header[l] == ' ' {
		token := strings.TrimSpace(header[l+1:])
		return token, token != ""
	}
	return "", false
}
