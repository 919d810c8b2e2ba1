package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diogo/aceorbit/internal/store"
)

// NewHistoryCmd creates the history command and its subcommands
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the conversation history",
		Long:  `View, export and clear the conversation stored on this device.`,
	}

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryClearCmd())
	cmd.AddCommand(newHistoryExportCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, _, err := openStore(zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}

			msgs := history.Load()
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				writeLine(out, "No messages yet.")
				return nil
			}

			for i, msg := range msgs {
				writeLine(out, fmt.Sprintf("[%d] %s (%s):", i, msg.Role.Label(), formatStamp(msg.Timestamp)))
				writeLine(out, msg.Text)
				if i < len(msgs)-1 {
					writeLine(out, "")
				}
			}
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, _, err := openStore(zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			history.Clear()
			writeLine(cmd.OutOrStdout(), "Conversation history cleared.")
			return nil
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored conversation",
		Long: `Export the conversation as Markdown or JSON.

Examples:
  aceorbit history export                    Markdown to stdout
  aceorbit history export --format json      JSON to stdout
  aceorbit history export -o chat.md         Markdown to a file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exportFormat, err := store.ParseExportFormat(format)
			if err != nil {
				return err
			}

			history, _, err := openStore(zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}

			data, err := store.Export(history.Load(), exportFormat, nil)
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			writeLine(cmd.ErrOrStderr(), fmt.Sprintf("Exported to %s", output))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Export format: markdown, md or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func formatStamp(ts int64) string {
	if ts <= 0 {
		return "unknown time"
	}
	return time.UnixMilli(ts).Format("2006-01-02 15:04")
}
