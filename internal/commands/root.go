// Package commands provides CLI commands for aceorbit.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/diogo/aceorbit/internal/config"
)

// Version info (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// rootFlags are the flags shared by every command
type rootFlags struct {
	backend string
	file    string
	raw     bool
	noSpeak bool
}

// NewRootCmd creates the aceorbit command tree
func NewRootCmd(deps *Dependencies) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "aceorbit [question]",
		Short: "Terminal client for the ACE Orbit college assistant",
		Long: `aceorbit talks to the ACE Orbit assistant backend. Ask a single
question from the command line or open the chat panel with voice input
and spoken replies.

Examples:
  aceorbit chat                          Start the chat panel
  aceorbit "What are the hostel fees?"   Ask a single question
  aceorbit -f question.txt               Read the question from a file
  echo "Library hours?" | aceorbit       Read the question from stdin
  aceorbit history export -o chat.md     Save the conversation`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, ok, err := readQuestion(cmd, flags, args)
			if err != nil {
				return err
			}
			if !ok {
				return cmd.Help()
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runAsk(cmd, deps, cfg, question, askOptions{raw: flags.raw, noSpeak: flags.noSpeak})
		},
	}

	cmd.PersistentFlags().StringVar(&flags.backend, "backend", "", "Backend base URL (overrides config)")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Read the question from a file")
	cmd.Flags().BoolVar(&flags.raw, "raw", false, "Print the reply text without formatting")
	cmd.Flags().BoolVar(&flags.noSpeak, "no-speak", false, "Do not speak the reply")

	cmd.AddCommand(NewChatCmd(deps, flags))
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewConfigCmd(flags))
	cmd.AddCommand(NewPingCmd(deps, flags))

	return cmd
}

// readQuestion picks the question from -f, a positional argument or
// piped stdin, in that order. ok is false when there is none.
func readQuestion(cmd *cobra.Command, flags *rootFlags, args []string) (string, bool, error) {
	if flags.file != "" {
		data, err := os.ReadFile(flags.file)
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(data), true, nil
	}

	if len(args) > 0 {
		return args[0], true, nil
	}

	in := cmd.InOrStdin()
	if isTerminal(in) {
		return "", false, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", false, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// loadConfig loads the user configuration and applies the --backend flag
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return cfg, err
	}
	if flags != nil && flags.backend != "" {
		if err := cfg.Set("backend_url", flags.backend); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() {
	root := NewRootCmd(NewDependencies())
	if err := root.Execute(); err != nil {
		backend := ""
		if cfg, cfgErr := config.LoadConfig(); cfgErr == nil {
			backend = cfg.BackendURL
		}
		if flag := root.PersistentFlags().Lookup("backend"); flag != nil && flag.Value.String() != "" {
			backend = flag.Value.String()
		}
		fmt.Fprintln(os.Stderr, formatErrorMessage(err, backend))
		os.Exit(1)
	}
}
