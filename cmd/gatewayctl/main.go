// Command gatewayctl performs operator tasks against the gateway's backing
// stores: issuing tokens, generating API keys, creating users and toggling
// maintenance mode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/logger"
)

// cli carries the persistent flags shared by every subcommand
type cli struct {
	configPath string
	logLevel   string
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(viper.New(), c.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) logger() *logger.Logger {
	return logger.NewWithOutput(c.logLevel, os.Stderr)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Operator tooling for the school API gateway",
		Long: `gatewayctl works directly against the gateway's Redis and Postgres stores.

Examples:
  # Issue a short-lived token for a support engineer
  gatewayctl token issue --user-id 1 --username head --role admin

  # Generate an API key for an integration
  gatewayctl apikey generate --user-id 40 --username fees-sync --role bursar

  # Put every gateway instance into maintenance mode
  gatewayctl maintenance on
`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", getEnvOrDefault("GATEWAY_CONFIG", ""), "Path to the gateway config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level for diagnostic output")

	root.AddCommand(newTokenCmd(c))
	root.AddCommand(newAPIKeyCmd(c))
	root.AddCommand(newUserCmd(c))
	root.AddCommand(newMaintenanceCmd(c))

	return root
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
