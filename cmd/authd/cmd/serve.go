package cmd

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-router"
	auth "github.com/goliatone/go-verified-auth"
	"github.com/goliatone/go-verified-auth/mail"
	"github.com/goliatone/go-verified-auth/metrics"
	"github.com/goliatone/go-verified-auth/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

const shutdownTimeout = 10 * time.Second

// serveCmd runs the HTTP service until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the account HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("migrate", true, "apply migrations before serving")
	serveCmd.Flags().Bool("log-mail", false, "log outgoing mail instead of sending it")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	migrate, _ := cmd.Flags().GetBool("migrate")
	logMail, _ := cmd.Flags().GetBool("log-mail")

	client, err := openPersistence()
	if err != nil {
		return err
	}
	defer client.DB().Close()

	if migrate {
		if err := auth.Migrate(ctx, client); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	srv, err := newServer(client.DB(), reg, logMail)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Addr)
		errCh <- srv.Serve(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openPersistence() (*persistence.Client, error) {
	return auth.OpenPersistence(auth.PersistenceConfig{
		DSN:   cfg.DatabaseDSN,
		Debug: cfg.Debug,
	})
}

// newServer wires the account service onto a go-router fiber adapter
func newServer(db *bun.DB, reg *prometheus.Registry, logMail bool) (router.Server[*fiber.App], error) {
	tokens, err := auth.NewTokenIssuer(cfg.Token, auth.WithIssuerLogger(logger))
	if err != nil {
		return nil, err
	}

	store := auth.NewAccountStoreFromDB(db,
		auth.WithPasswordCost(cfg.PasswordCost),
		auth.WithConfirmationTTL(cfg.ConfirmationTTL),
		auth.WithDeterministicIDs(cfg.DeterministicIDs),
		auth.WithStoreLogger(logger),
	)

	gateway, err := newMailGateway(logMail)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(reg)

	opts := []auth.ControllerOption{
		auth.WithControllerLogger(logger),
		auth.WithMailTimeout(cfg.Mail.Timeout),
		auth.WithPhoneRegion(cfg.PhoneRegion),
		auth.WithActivitySink(auth.MultiActivitySink{
			collector,
			auth.LoggingActivitySink{Logger: logger},
		}),
	}

	if cfg.Google.Enabled() {
		provider, err := newGoogleProvider()
		if err != nil {
			return nil, err
		}
		opts = append(opts, auth.WithOAuthProvider(provider))
	}

	lifecycle := auth.NewController(store, gateway, tokens, opts...)

	acOpts := []auth.AccountControllerOption{
		auth.WithAccountControllerDebug(cfg.Debug),
		auth.WithAccountControllerLogger(logger),
		auth.WithLoginRateLimit(cfg.LoginRateLimit),
	}
	if cfg.PublicBaseURL != "" {
		links, err := auth.NewBaseURLLinkBuilder(cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		acOpts = append(acOpts, auth.WithPublicLinks(links))
	}

	ac := auth.NewAccountController(lifecycle, acOpts...)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		app := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "authd",
			DisableStartupMessage: true,
		}))
		app.Use(recover.New())
		app.Use(collector.Middleware())
		auth.UseLoginLimiter(app, ac)
		metrics.RegisterRoute(app, "/metrics", reg)
		return app
	})

	auth.RegisterAccountRoutes(srv.Router(), ac)

	return srv, nil
}

func newMailGateway(logMail bool) (auth.MailGateway, error) {
	if logMail || cfg.Mail.Host == "" {
		logger.Warn("mail delivery disabled, messages are only logged")
		return mail.LogGateway{Logger: logger}, nil
	}
	return mail.NewSMTPGateway(cfg.Mail, logger)
}

func newGoogleProvider() (*social.GoogleProvider, error) {
	states, err := social.NewEncryptedStateManager(
		[]byte(cfg.State.EncryptionKey),
		[]byte(cfg.State.HMACKey),
		cfg.State.TTL,
	)
	if err != nil {
		return nil, err
	}

	var idTokens *social.IDTokenVerifier
	if cfg.Google.JWKSURL != "" {
		idTokens, err = social.NewIDTokenVerifier(cfg.Google.JWKSURL, cfg.Google.ClientID, cfg.Google.Issuers, nil, logger)
		if err != nil {
			return nil, err
		}
	}

	return social.NewGoogleProvider(social.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Scopes:       cfg.Google.Scopes,
		AuthURL:      cfg.Google.AuthURL,
		TokenURL:     cfg.Google.TokenURL,
		UserInfoURL:  cfg.Google.UserInfoURL,
		IDTokens:     idTokens,
	}, states, logger), nil
}
