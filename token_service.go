package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims is the claim set carried by a session token. Email and Name
// are informational only.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// AuthenticationResponse bundles a signed session token with the identity
// it was issued for.
type AuthenticationResponse struct {
	Token      string    `json:"token"`
	Email      string    `json:"email"`
	PersonName string    `json:"person_name"`
	Expiration time.Time `json:"expiration"`
}

// TokenIssuerOption configures a TokenIssuer
type TokenIssuerOption func(*TokenIssuer)

// WithIssuerClock replaces the wall clock, mostly for tests
func WithIssuerClock(now func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if now != nil {
			ti.now = now
		}
	}
}

// WithIssuerLogger sets the logger used by the issuer
func WithIssuerLogger(logger Logger) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if logger != nil {
			ti.logger = logger
		}
	}
}

// TokenIssuer signs HS256 session tokens. It holds no mutable state and is
// safe for concurrent use.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	expiration time.Duration
	now        func() time.Time
	logger     Logger
}

// NewTokenIssuer validates cfg and fails closed: a misconfigured issuer is
// never returned.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ti := &TokenIssuer{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   jwt.ClaimStrings{cfg.Audience},
		expiration: cfg.Expiration(),
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}

	return ti, nil
}

// CreateSessionToken issues a fresh token for account
func (ti *TokenIssuer) CreateSessionToken(account *Account) (*AuthenticationResponse, error) {
	if account == nil || account.ID == uuid.Nil {
		return nil, goerrors.New("account is required to issue a session token", goerrors.CategoryInternal)
	}

	now := ti.now().UTC()
	expiresAt := now.Add(ti.expiration)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    ti.issuer,
			Audience:  ti.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: account.Email,
		Name:  account.PersonName,
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := ti.sign(claims)
	if err != nil {
		return nil, err
	}

	return &AuthenticationResponse{
		Token:      signed,
		Email:      account.Email,
		PersonName: account.PersonName,
		// NumericDate truncates to seconds, keep the response in step with exp
		Expiration: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// ParseSessionToken verifies a token issued by ti and returns its claims.
// Tokens signed with another key or algorithm, for another issuer or
// audience, or past their expiration are rejected with a session error.
func (ti *TokenIssuer) ParseSessionToken(raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, NewSessionError("missing token")
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, ti.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithAudience(ti.audience[0]),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		ti.logger.Debug("session token rejected: %v", err)
		return nil, NewSessionError(err.Error())
	}

	return claims, nil
}

func (ti *TokenIssuer) keyFunc(*jwt.Token) (any, error) {
	return ti.signingKey, nil
}

func (ti *TokenIssuer) sign(claims *SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		ti.logger.Error("failed to sign session token: %v", err)
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
