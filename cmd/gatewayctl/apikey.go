package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/scholaris/school-gateway/internal/store"
	"github.com/scholaris/school-gateway/pkg/database"
)

func newAPIKeyCmd(c *cli) *cobra.Command {
	apiKeyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for integrations",
	}

	var identity identityFlags
	var printOnly bool
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an API key and store its hash",
		Long: `Generate a random API key bound to a principal. The key is printed once;
only its bcrypt hash is stored. With --print-only, or when the database is
disabled, the record is printed instead of stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			principal, err := identity.principal()
			if err != nil {
				return err
			}

			raw, record, err := store.GenerateAPIKey(principal, bcrypt.DefaultCost, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if printOnly || !cfg.Database.Enabled {
				fmt.Fprintf(out, "key:    %s\nprefix: %s\nhash:   %s\n", raw, record.Prefix, record.Hash)
				return nil
			}

			db, err := database.NewConnection(&cfg.Database, c.logger())
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := store.NewPostgresAPIKeyStore(db).Create(ctx, record); err != nil {
				return err
			}

			fmt.Fprintf(out, "key:    %s\nid:     %s\nprefix: %s\n", raw, record.ID, record.Prefix)
			return nil
		},
	}
	identity.register(generateCmd)
	generateCmd.Flags().BoolVar(&printOnly, "print-only", false, "Print the record instead of storing it")

	apiKeyCmd.AddCommand(generateCmd)
	return apiKeyCmd
}
