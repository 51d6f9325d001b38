package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/scholaris/school-gateway/internal/account"
	"github.com/scholaris/school-gateway/pkg/database"
	"github.com/scholaris/school-gateway/pkg/types"
)

func newUserCmd(c *cli) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage directory users",
	}

	var (
		username string
		password string
		roles    []string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a directory user with roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return fmt.Errorf("database is not enabled in the configuration")
			}
			if len(password) < account.MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", account.MinPasswordLength)
			}

			hash, err := account.NewPasswordManager(bcrypt.DefaultCost).HashPassword(password)
			if err != nil {
				return err
			}

			db, err := database.NewConnection(&cfg.Database, c.logger())
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := db.CreateSchema(ctx); err != nil {
				return err
			}

			user := &types.User{
				Username:     username,
				PasswordHash: hash,
				Roles:        types.NormalizeRoles(roles),
				Active:       true,
				CreatedAt:    time.Now(),
			}
			if err := account.NewUserRepository(db, c.logger()).Create(ctx, user); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d) with roles %v\n", user.Username, user.ID, user.Roles)
			return nil
		},
	}
	createCmd.Flags().StringVar(&username, "username", "", "Username")
	createCmd.Flags().StringVar(&password, "password", "", "Initial password")
	createCmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant (repeatable)")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	userCmd.AddCommand(createCmd)
	return userCmd
}
