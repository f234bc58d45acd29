package cmd

import (
	auth "github.com/goliatone/go-verified-auth"
	"github.com/spf13/cobra"
)

// migrateCmd applies the embedded schema and exits.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openPersistence()
		if err != nil {
			return err
		}
		defer client.DB().Close()

		if err := auth.Migrate(cmd.Context(), client); err != nil {
			return err
		}

		logger.Info("migrations applied dialect=%s", client.DB().Dialect().Name())
		return nil
	},
}
