package social

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-verified-auth"
)

// DefaultGoogleIssuers are the iss values Google puts in ID tokens.
func DefaultGoogleIssuers() []string {
	return []string{"https://accounts.google.com", "accounts.google.com"}
}

// IDTokenClaims are the OpenID Connect claims read from a provider ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// IDTokenVerifier checks ID token signatures against a JWK set and validates
// audience, issuer and expiry.
type IDTokenVerifier struct {
	jwks     *keyfunc.JWKS
	audience string
	issuers  []string
	now      func() time.Time
}

// NewIDTokenVerifier fetches the JWK set at jwksURL and keeps it refreshed
// in the background. Call Close to stop the refresh goroutine.
func NewIDTokenVerifier(jwksURL, audience string, issuers []string, client *http.Client, logger auth.Logger) (*IDTokenVerifier, error) {
	if strings.TrimSpace(jwksURL) == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client: client,
		RefreshErrorHandler: func(err error) {
			if logger != nil {
				logger.Warn("failed to do a background refresh of JWK set: %s", err)
			}
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK set: %w", err)
	}

	if len(issuers) == 0 {
		issuers = DefaultGoogleIssuers()
	}

	return &IDTokenVerifier{
		jwks:     jwks,
		audience: audience,
		issuers:  issuers,
		now:      time.Now,
	}, nil
}

// Verify parses raw and returns its claims when the token is signed by a
// key in the set, addressed to our client and issued by a trusted issuer.
func (v *IDTokenVerifier) Verify(raw string) (*IDTokenClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, idTokenError("missing id token")
	}

	claims := &IDTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, idTokenError(err.Error())
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, idTokenError("untrusted issuer")
	}

	return claims, nil
}

// Close stops the background JWK set refresh.
func (v *IDTokenVerifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// IsInvalidIDToken reports whether err came from ID token verification.
func IsInvalidIDToken(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeInvalidIDToken
	}
	return false
}
