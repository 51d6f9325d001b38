package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholaris/school-gateway/internal/store"
)

func newMaintenanceCmd(c *cli) *cobra.Command {
	maintenanceCmd := &cobra.Command{
		Use:       "maintenance [on|off|status]",
		Short:     "Toggle or inspect the shared maintenance flag",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return fmt.Errorf("redis is not enabled; the flag of a memory-backed gateway can only be changed through its maintenance endpoint")
			}

			client := store.NewRedisClient(&cfg.Redis)
			defer client.Close()
			flag := store.NewRedisMaintenanceStore(client, cfg.Redis.Prefix)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			switch args[0] {
			case "on":
				err = flag.SetEnabled(ctx, true)
			case "off":
				err = flag.SetEnabled(ctx, false)
			}
			if err != nil {
				return err
			}

			enabled, err := flag.Enabled(ctx)
			if err != nil {
				return err
			}

			state := "off"
			if enabled {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "maintenance: %s\n", state)
			return nil
		},
	}
	return maintenanceCmd
}
