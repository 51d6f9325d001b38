package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholaris/school-gateway/internal/gateway"
	"github.com/scholaris/school-gateway/pkg/types"
)

// identityFlags are the principal fields shared by token and apikey commands
type identityFlags struct {
	userID   int64
	username string
	roles    []string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.userID, "user-id", 0, "Numeric user id")
	cmd.Flags().StringVar(&f.username, "username", "", "Username")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "Role to grant (repeatable)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("username")
}

func (f *identityFlags) principal() (types.Principal, error) {
	if f.userID <= 0 {
		return types.Principal{}, fmt.Errorf("--user-id must be positive")
	}
	return types.NewPrincipal(f.userID, f.username, f.roles...), nil
}

func newTokenCmd(c *cli) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Work with signed identity tokens",
	}

	var identity identityFlags
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			principal, err := identity.principal()
			if err != nil {
				return err
			}

			token, err := gateway.NewJWTCodec(&cfg.JWT).Issue(principal, time.Now())
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}
	identity.register(issueCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			principal, err := gateway.NewJWTCodec(&cfg.JWT).Verify(args[0], time.Now())
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(principal)
		},
	}

	tokenCmd.AddCommand(issueCmd, verifyCmd)
	return tokenCmd
}
