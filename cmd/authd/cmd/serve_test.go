package cmd

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-verified-auth"
	"github.com/goliatone/go-verified-auth/mail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *auth.Config {
	return &auth.Config{
		Addr:            ":0",
		DatabaseDSN:     ":memory:",
		ConfirmationTTL: auth.DefaultConfirmationTTL,
		PasswordCost:    4,
		Token: auth.TokenConfig{
			SigningKey:        "0123456789abcdef0123456789abcdef",
			Issuer:            "authd",
			Audience:          "authd-clients",
			ExpirationMinutes: 5,
		},
	}
}

func TestNewApp_ServesAccountRoutes(t *testing.T) {
	cfg = testConfig()
	logger = auth.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	client, err := openPersistence()
	require.NoError(t, err)
	defer client.DB().Close()
	require.NoError(t, auth.Migrate(context.Background(), client))

	srv, err := newServer(client.DB(), prometheus.NewRegistry(), true)
	require.NoError(t, err)
	app := srv.WrappedRouter()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/account/googlelogincallback", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "google routes only exist when configured")
}

func TestNewApp_RejectsBadTokenConfig(t *testing.T) {
	cfg = testConfig()
	cfg.Token.SigningKey = "short"
	logger = auth.NewSlogLogger(nil)

	_, err := newServer(nil, prometheus.NewRegistry(), true)
	assert.True(t, auth.IsConfigurationError(err))
}

func TestNewApp_WiresGoogle(t *testing.T) {
	cfg = testConfig()
	cfg.Google = auth.GoogleConfig{ClientID: "client", ClientSecret: "secret"}
	cfg.State = auth.StateConfig{
		EncryptionKey: "0123456789abcdef0123456789abcdef",
		HMACKey:       "hmac",
		TTL:           auth.DefaultConfirmationTTL,
	}
	logger = auth.NewSlogLogger(nil)

	client, err := openPersistence()
	require.NoError(t, err)
	defer client.DB().Close()

	srv, err := newServer(client.DB(), prometheus.NewRegistry(), true)
	require.NoError(t, err)
	app := srv.WrappedRouter()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/account/googlelogincallback?error=access_denied", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNewMailGateway(t *testing.T) {
	logger = auth.NewSlogLogger(nil)

	t.Run("empty host logs mail", func(t *testing.T) {
		cfg = testConfig()

		gateway, err := newMailGateway(false)
		require.NoError(t, err)
		assert.IsType(t, mail.LogGateway{}, gateway)
	})

	t.Run("flag forces log mail", func(t *testing.T) {
		cfg = testConfig()
		cfg.Mail.Host = "smtp.example.com"
		cfg.Mail.Username = "noreply@example.com"

		gateway, err := newMailGateway(true)
		require.NoError(t, err)
		assert.IsType(t, mail.LogGateway{}, gateway)
	})

	t.Run("host selects smtp", func(t *testing.T) {
		cfg = testConfig()
		cfg.Mail.Host = "smtp.example.com"
		cfg.Mail.Port = 587
		cfg.Mail.Username = "noreply@example.com"

		gateway, err := newMailGateway(false)
		require.NoError(t, err)
		assert.IsType(t, &mail.SMTPGateway{}, gateway)
	})
}
