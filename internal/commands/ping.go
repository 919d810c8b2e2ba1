package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// NewPingCmd creates the ping command
func NewPingCmd(deps *Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := deps.logger(cfg)
			defer func() { _ = logger.Sync() }()

			client, err := deps.newClient(cfg, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			start := time.Now()
			if err := client.Health(ctx); err != nil {
				return err
			}
			elapsed := time.Since(start).Round(time.Millisecond)

			ok := lipgloss.NewStyle().Foreground(colorSuccess).Render("✓")
			writeLine(cmd.OutOrStdout(), fmt.Sprintf("%s %s is up (%s)", ok, client.BaseURL(), elapsed))
			return nil
		},
	}
}
