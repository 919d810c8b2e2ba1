package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/diogo/aceorbit/internal/config"
	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/models"
	"github.com/diogo/aceorbit/internal/render"
)

var (
	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Foreground(colorText).
				Padding(0, 1).
				MarginBottom(1)
)

// askOptions controls a one-shot question
type askOptions struct {
	raw     bool
	noSpeak bool
}

// runAsk sends one question through a session and prints the reply.
// The question and reply are added to the stored conversation.
func runAsk(cmd *cobra.Command, deps *Dependencies, cfg config.Config, question string, opts askOptions) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if n := utf8.RuneCountInString(question); n > models.MaxMessageLength {
		return fmt.Errorf("question is too long (%d characters, limit %d)", n, models.MaxMessageLength)
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	decorate := !opts.raw && isTerminal(errOut)

	a, err := deps.openApp(cfg, appOptions{speak: !opts.noSpeak})
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer a.Close()

	if cfg.Verbose && !opts.raw {
		fmt.Fprintf(errOut, "[verbose] Backend: %s\n", a.client.BaseURL())
	}

	var spin *spinner
	if decorate {
		spin = newSpinner(errOut, models.AssistantName+" is typing")
		spin.start()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err = a.session.Send(ctx, question)
	elapsed := time.Since(start)

	if err != nil {
		if spin != nil {
			spin.stopWithError()
		}
		return err
	}
	if spin != nil {
		spin.stopWithSuccess("Done")
	}
	if cfg.Verbose && !opts.raw {
		fmt.Fprintf(errOut, "[verbose] Request took %s\n", elapsed.Round(time.Millisecond))
	}

	st := a.session.State()
	idx := st.LastReply()
	if idx < 0 {
		return fmt.Errorf("no reply recorded")
	}
	reply := st.Messages[idx].Text

	if opts.raw {
		fmt.Fprintln(out, reply)
	} else {
		printReply(out, reply, render.FromConfig(cfg))
	}

	if cfg.CopyToClipboard {
		// Best effort; failures are logged by the session
		_ = a.session.Copy(idx)
		if !opts.raw {
			fmt.Fprintln(errOut, lipgloss.NewStyle().Foreground(colorSuccess).Render("✓ Copied to clipboard"))
		}
	}

	// Let the spoken reply finish before the session cancels playback
	if a.synth != nil && st.SpeechEnabled {
		a.synth.Wait()
	}
	a.logger.Debug("ask complete", zap.Duration("elapsed", elapsed))
	return nil
}

// printReply renders a reply the way the chat panel does
func printReply(w io.Writer, reply string, opts render.Options) {
	bubbleWidth := getTerminalWidth(w) - 4
	if bubbleWidth < 40 {
		bubbleWidth = 40
	}
	if bubbleWidth > 120 {
		bubbleWidth = 120
	}
	contentWidth := bubbleWidth - 4

	fmt.Fprintln(w, assistantLabelStyle.Render("✦ "+models.AssistantName))
	rendered := render.Reply(reply, opts.WithWidth(contentWidth))
	fmt.Fprintln(w, assistantBubbleStyle.Width(bubbleWidth).Render(rendered))
}

// getTerminalWidth returns the width of w when it is a terminal, else 80
func getTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// isTerminal reports whether v is a terminal file
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// formatErrorMessage formats an error for the terminal with a hint when
// the cause is recognizable
func formatErrorMessage(err error, backendURL string) string {
	if err == nil {
		return ""
	}

	errorStyle := lipgloss.NewStyle().Foreground(colorError)
	dimStyle := lipgloss.NewStyle().Foreground(colorTextDim)

	var sb strings.Builder
	sb.WriteString(errorStyle.Render("✗ " + apierrors.Describe(err)))

	switch {
	case apierrors.IsTimeoutError(err):
		sb.WriteString(dimStyle.Render("\n  Hint: The backend took too long. Raise timeout_seconds or try again"))
	case apierrors.IsNetworkError(err):
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n  Hint: Is the backend running at %s?", backendURL)))
	case apierrors.GetHTTPStatus(err) == 502:
		sb.WriteString(dimStyle.Render("\n  Hint: The backend could not reach its language model"))
	case apierrors.IsCapabilityError(err):
		sb.WriteString(dimStyle.Render("\n  Hint: Configure speech.recognizer_command or speech.synthesizer_command"))
	}

	return sb.String()
}
