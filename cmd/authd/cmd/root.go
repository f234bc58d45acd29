// Package cmd implements the authd command line.
//
// authd serves account registration, password and Google login, and email
// confirmation over HTTP. All settings come from AUTH_* environment
// variables.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	auth "github.com/goliatone/go-verified-auth"
	"github.com/spf13/cobra"
)

var (
	cfg    *auth.Config
	logger *auth.SlogLogger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "authd",
	Short: "Account service with email confirmation",
	Long: `authd registers accounts, signs them in with a password or Google,
and requires email confirmation before a password session is issued.

Configuration is read from the environment:
  AUTH_JWT_KEY, AUTH_JWT_ISSUER, AUTH_JWT_AUDIENCE   session token signing
  AUTH_DATABASE_DSN                                  sqlite file or postgres:// URL
  AUTH_MAIL_HOST, AUTH_MAIL_USERNAME, ...            SMTP delivery
  AUTH_GOOGLE_CLIENT_ID, AUTH_GOOGLE_CLIENT_SECRET   enables Google login`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = auth.LoadConfig()
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger = auth.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
