package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogo/aceorbit/internal/render"
)

// NewChatCmd creates the chat command
func NewChatCmd(deps *Dependencies, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the chat panel",
		Long: `Open the interactive chat panel. The conversation is restored from
the previous session.

Keys:
  Enter    send             Ctrl+R   toggle the microphone
  Ctrl+T   voice replies    Ctrl+Y   copy the last reply
  Ctrl+L   clear history    Esc      quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := deps.openApp(cfg, appOptions{listen: true, speak: true})
			if err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
			defer a.Close()

			return deps.ui().RunChat(a.session, render.FromConfig(cfg))
		},
	}
}
