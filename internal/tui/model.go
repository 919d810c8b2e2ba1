package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/diogo/aceorbit/internal/models"
	"github.com/diogo/aceorbit/internal/render"
	"github.com/diogo/aceorbit/internal/session"
)

// ChatSession is the part of session.Session the panel drives
type ChatSession interface {
	Send(ctx context.Context, text string) error
	State() session.State
	Subscribe() <-chan struct{}
	ToggleListening() error
	ToggleSpeech() bool
	Copy(index int) error
	ClearHistory()
	Close()
}

type (
	// stateChangedMsg reports that the session state moved on
	stateChangedMsg struct{}
	// sessionClosedMsg is sent once the subscription ends
	sessionClosedMsg struct{}
)

type sendDoneMsg struct {
	err error
}

// Model is the chat panel
type Model struct {
	session ChatSession
	changes <-chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	state      session.State
	notice     string
	renderOpts render.Options
	loc        *time.Location
	ready      bool
	ticking    bool // a spinner tick is scheduled

	width  int
	height int
}

// NewModel creates a panel bound to sess
func NewModel(sess ChatSession, opts render.Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask ACE Orbit..."
	ta.CharLimit = models.MaxMessageLength
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.Focus()

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = typingStyle

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		session:    sess,
		changes:    sess.Subscribe(),
		ctx:        ctx,
		cancel:     cancel,
		textarea:   ta,
		spinner:    s,
		state:      sess.State(),
		renderOpts: opts,
		loc:        time.Local,
	}
}

// Init starts the cursor blink and the state subscription
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitForChange(m.changes),
	)
}

// waitForChange blocks until the session reports a change
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return sessionClosedMsg{}
		}
		return stateChangedMsg{}
	}
}

// send submits text in the background; the reply arrives as a state change
func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.session.Send(m.ctx, text)}
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.updateViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quit()
			return m, tea.Quit

		case "enter":
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			if input == "/quit" || input == "/exit" {
				m.quit()
				return m, tea.Quit
			}
			m.textarea.Reset()
			m.notice = ""
			return m, m.send(input)

		case "ctrl+t":
			if m.session.ToggleSpeech() {
				m.notice = "Voice replies on"
			} else {
				m.notice = "Voice replies off"
			}
			cmd = m.refresh()
			return m, cmd

		case "ctrl+r":
			// Failures surface through State().LastError
			_ = m.session.ToggleListening()
			cmd = m.refresh()
			return m, cmd

		case "ctrl+y":
			idx := m.state.LastReply()
			if idx < 0 {
				m.notice = "Nothing to copy yet"
				return m, nil
			}
			if err := m.session.Copy(idx); err != nil {
				m.notice = err.Error()
			} else {
				m.notice = "Copied the last reply"
			}
			return m, nil

		case "ctrl+l":
			m.session.ClearHistory()
			m.notice = "Conversation cleared"
			cmd = m.refresh()
			return m, cmd
		}

	case stateChangedMsg:
		cmds = append(cmds, waitForChange(m.changes), m.refresh())
		return m, tea.Batch(cmds...)

	case sessionClosedMsg:
		return m, nil

	case sendDoneMsg:
		if errors.Is(msg.err, session.ErrBusy) {
			m.notice = "Still waiting for the previous reply"
		}
		return m, nil

	case spinner.TickMsg:
		if !m.state.Pending {
			m.ticking = false
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Only keys reach the textarea to keep escape sequences out of the input
	if _, ok := msg.(tea.KeyMsg); ok {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) quit() {
	m.cancel()
	m.session.Close()
}

// refresh reloads the session state and returns a spinner tick when the
// state became pending and no tick is scheduled yet
func (m *Model) refresh() tea.Cmd {
	m.state = m.session.State()
	m.updateViewport()
	m.viewport.GotoBottom()

	if m.state.Pending && !m.ticking {
		m.ticking = true
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) layout() {
	headerHeight := 3 // header with border
	inputHeight := 5  // input panel with border and typing line
	statusHeight := 2 // notice or error line, status bar
	borders := 2

	vpHeight := m.height - headerHeight - inputHeight - statusHeight - borders
	if vpHeight < 3 {
		vpHeight = 3
	}
	contentWidth := m.contentWidth()

	if !m.ready {
		m.viewport = viewport.New(contentWidth, vpHeight)
		m.viewport.KeyMap = scrollKeys()
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(contentWidth - 4)
}

// scrollKeys limits viewport scrolling to keys the textarea does not type
func scrollKeys() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		Up:       key.NewBinding(key.WithKeys("ctrl+up")),
		Down:     key.NewBinding(key.WithKeys("ctrl+down")),
	}
}

func (m Model) contentWidth() int {
	if w := m.width - 4; w > 20 {
		return w
	}
	return 20
}

// View renders the panel
func (m Model) View() string {
	if !m.ready {
		return typingStyle.Render("  Initializing...")
	}

	contentWidth := m.contentWidth()
	var sections []string

	sections = append(sections, headerStyle.Width(contentWidth).Render(m.renderHeader()))

	var messages string
	if len(m.state.Messages) == 0 {
		messages = m.renderEmpty()
	} else {
		messages = m.viewport.View()
	}
	sections = append(sections, messagesAreaStyle.
		Width(contentWidth).
		Height(m.viewport.Height).
		Render(messages))

	typing := ""
	if m.state.Pending {
		typing = m.spinner.View() + typingStyle.Render(" "+models.AssistantName+" is typing")
	} else if m.state.Listening {
		typing = listeningStyle.Render("● Listening...")
	}
	sections = append(sections, inputPanelStyle.Width(contentWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, typing, m.textarea.View()),
	))

	switch {
	case m.state.LastError != "":
		sections = append(sections, errorStyle.Render("⚠ "+m.state.LastError))
	case m.notice != "":
		sections = append(sections, noticeStyle.Render(m.notice))
	default:
		sections = append(sections, "")
	}

	sections = append(sections, m.renderStatusBar(contentWidth))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	voice := "voice off"
	if m.state.SpeechEnabled {
		voice = "voice on"
	}
	parts := []string{
		titleStyle.Render("✦ " + models.AssistantName),
		hintStyle.Render("  •  "),
		subtitleStyle.Render(voice),
	}
	if m.state.Listening {
		parts = append(parts, hintStyle.Render("  •  "), listeningStyle.Render("mic live"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m Model) renderEmpty() string {
	hint := hintStyle.Width(m.viewport.Width - 4).Align(lipgloss.Center).Render(models.EmptyHint)
	top := (m.viewport.Height - lipgloss.Height(hint)) / 2
	if top < 0 {
		top = 0
	}
	return strings.Repeat("\n", top) + hint
}

func (m Model) renderStatusBar(width int) string {
	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send"},
		{"^R", "Mic"},
		{"^T", "Voice"},
		{"^Y", "Copy"},
		{"^L", "Clear"},
		{"Esc", "Quit"},
	}

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		items = append(items, statusKeyStyle.Render(s.key)+statusDescStyle.Render(" "+s.desc))
	}
	return statusBarStyle.Width(width).Align(lipgloss.Center).Render(strings.Join(items, "  │  "))
}

// updateViewport refreshes the viewport with the message log
func (m *Model) updateViewport() {
	if !m.ready {
		return
	}

	var content strings.Builder
	bubbleWidth := m.viewport.Width - 6
	opts := m.renderOpts.WithWidth(bubbleWidth - 4)

	for i, msg := range m.state.Messages {
		if i > 0 {
			content.WriteString("\n")
		}
		stamp := timeStyle.Render(" " + formatTime(msg.Timestamp, m.loc))

		if msg.IsUser() {
			content.WriteString(userLabelStyle.Render(msg.Role.Label()) + stamp + "\n")
			content.WriteString(userBubbleStyle.Width(bubbleWidth).Render(msg.Text))
		} else {
			content.WriteString(assistantLabelStyle.Render(msg.Role.Label()) + stamp + "\n")
			content.WriteString(assistantBubbleStyle.Width(bubbleWidth).Render(render.Reply(msg.Text, opts)))
		}
		content.WriteString("\n")
	}
	m.viewport.SetContent(content.String())
}

// formatTime renders a message timestamp as local wall-clock time
func formatTime(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ts).In(loc).Format("15:04")
}

// RunChat runs the panel until the user quits, then closes the session
func RunChat(sess ChatSession, opts render.Options) error {
	defer sess.Close()

	p := tea.NewProgram(NewModel(sess, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat panel failed: %w", err)
	}
	return nil
}
