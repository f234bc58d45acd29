package auth

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// MinSigningKeyLength is the shortest HMAC-SHA256 secret we accept
const MinSigningKeyLength = 32

// TokenConfig holds the session token signing options
type TokenConfig struct {
	SigningKey        string `env:"AUTH_JWT_KEY"`
	Issuer            string `env:"AUTH_JWT_ISSUER"`
	Audience          string `env:"AUTH_JWT_AUDIENCE"`
	ExpirationMinutes int    `env:"AUTH_JWT_EXPIRATION_MINUTES" envDefault:"60"`
}

// Expiration returns the token lifetime
func (c TokenConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

// Validate fails closed on anything that would produce unsafe tokens
func (c TokenConfig) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return NewConfigurationError("jwt signing key is required")
	}
	if len(c.SigningKey) < MinSigningKeyLength {
		return NewConfigurationError("jwt signing key must be at least 32 bytes")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return NewConfigurationError("jwt issuer is required")
	}
	if strings.TrimSpace(c.Audience) == "" {
		return NewConfigurationError("jwt audience is required")
	}
	if c.ExpirationMinutes <= 0 {
		return NewConfigurationError("jwt expiration minutes must be a positive number")
	}
	return nil
}

// MailConfig holds SMTP settings
type MailConfig struct {
	Host     string        `env:"AUTH_MAIL_HOST"`
	Port     int           `env:"AUTH_MAIL_PORT" envDefault:"587"`
	Username string        `env:"AUTH_MAIL_USERNAME"`
	Password string        `env:"AUTH_MAIL_PASSWORD"`
	From     string        `env:"AUTH_MAIL_FROM"`
	StartTLS bool          `env:"AUTH_MAIL_STARTTLS" envDefault:"true"`
	Timeout  time.Duration `env:"AUTH_MAIL_TIMEOUT" envDefault:"10s"`
}

// Sender returns the envelope sender, the SMTP user when From is unset
func (c MailConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// GoogleConfig holds the Google OAuth client options
type GoogleConfig struct {
	ClientID     string   `env:"AUTH_GOOGLE_CLIENT_ID"`
	ClientSecret string   `env:"AUTH_GOOGLE_CLIENT_SECRET"`
	Scopes       []string `env:"AUTH_GOOGLE_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	AuthURL      string   `env:"AUTH_GOOGLE_AUTH_URL"`
	TokenURL     string   `env:"AUTH_GOOGLE_TOKEN_URL"`
	UserInfoURL  string   `env:"AUTH_GOOGLE_USERINFO_URL"`
	// JWKSURL enables ID token verification, e.g.
	// https://www.googleapis.com/oauth2/v3/certs
	JWKSURL string   `env:"AUTH_GOOGLE_JWKS_URL"`
	Issuers []string `env:"AUTH_GOOGLE_ISSUERS" envSeparator:"," envDefault:"https://accounts.google.com,accounts.google.com"`
}

// Enabled reports whether federated login is configured
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// StateConfig holds the keys protecting the OAuth state parameter
type StateConfig struct {
	EncryptionKey string        `env:"AUTH_STATE_ENCRYPTION_KEY"`
	HMACKey       string        `env:"AUTH_STATE_HMAC_KEY"`
	TTL           time.Duration `env:"AUTH_STATE_TTL" envDefault:"10m"`
}

// Config is the process wide configuration. It is loaded once at startup
// and must not be mutated afterwards.
type Config struct {
	Addr             string        `env:"AUTH_ADDR" envDefault:":8080"`
	PublicBaseURL    string        `env:"AUTH_PUBLIC_BASE_URL"`
	DatabaseDSN      string        `env:"AUTH_DATABASE_DSN" envDefault:"file:auth.db?cache=shared"`
	Debug            bool          `env:"AUTH_DEBUG"`
	ConfirmationTTL  time.Duration `env:"AUTH_CONFIRMATION_TTL" envDefault:"24h"`
	PasswordCost     int           `env:"AUTH_PASSWORD_COST" envDefault:"12"`
	PhoneRegion      string        `env:"AUTH_PHONE_REGION"`
	DeterministicIDs bool          `env:"AUTH_DETERMINISTIC_IDS"`
	LoginRateLimit   int           `env:"AUTH_LOGIN_RATE_LIMIT" envDefault:"20"`

	Token  TokenConfig
	Mail   MailConfig
	Google GoogleConfig
	State  StateConfig
}

// LoadConfig reads configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse configuration").
			WithTextCode(TextCodeConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross field requirements
func (c *Config) Validate() error {
	if err := c.Token.Validate(); err != nil {
		return err
	}

	if c.ConfirmationTTL <= 0 {
		return NewConfigurationError("confirmation ttl must be positive")
	}

	if c.Google.Enabled() {
		if len(c.State.EncryptionKey) != 32 {
			return NewConfigurationError("state encryption key must be 32 bytes when google login is enabled")
		}
		if c.State.HMACKey == "" {
			return NewConfigurationError("state hmac key is required when google login is enabled")
		}
	}

	return nil
}
