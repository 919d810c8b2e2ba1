package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diogo/aceorbit/internal/config"
)

// NewConfigCmd creates the config command
func NewConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Long: fmt.Sprintf(`Show or change the settings stored in ~/.aceorbit/config.json.

Keys accepted by "config set":
  %s`, strings.Join(config.Keys(), "\n  ")),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			writeLine(out, string(data))
			if path, err := config.GetConfigPath(); err == nil {
				writeLine(cmd.ErrOrStderr(), "Config file: "+path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Environment overrides are not written back
			cfg, err := config.LoadFile()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), fmt.Sprintf("Set %s = %s", args[0], strings.TrimSpace(args[1])))
			return nil
		},
	})

	return cmd
}
