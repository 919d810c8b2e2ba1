// Package session implements the conversation controller behind the chat
// panel: message log, outbound requests, and the speech lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/diogo/aceorbit/internal/api"
	"github.com/diogo/aceorbit/internal/config"
	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/models"
	"github.com/diogo/aceorbit/internal/speech"
	"github.com/diogo/aceorbit/internal/store"
)

var (
	// ErrBusy is returned by Send under the serial policy while a request is pending
	ErrBusy = errors.New("a message is already being sent")
	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.New("session is closed")
)

// Clipboard receives copied message text
type Clipboard interface {
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return apierrors.NewCapabilityError(apierrors.CapabilityClipboard)
	}
	return clipboard.WriteAll(text)
}

// SystemClipboard returns the host clipboard
func SystemClipboard() Clipboard {
	return systemClipboard{}
}

// Options wires a Session. Only Backend is required; missing persistence
// falls back to memory and missing speech controllers to unavailable ones.
type Options struct {
	Backend     api.Backend
	History     *store.History
	Preferences *store.Preferences
	Input       *speech.Input
	Output      *speech.Output
	Clipboard   Clipboard
	Clock       func() time.Time
	Logger      *zap.Logger
	SendPolicy  string // config.SendConcurrent (default) or config.SendSerial
}

// State is a snapshot of the session
type State struct {
	Messages      []models.Message
	Pending       bool
	LastError     string // empty when there is no error to show
	Listening     bool
	SpeechEnabled bool
}

// LastReply returns the index of the newest assistant message, or -1
func (st State) LastReply() int {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == models.RoleAssistant {
			return i
		}
	}
	return -1
}

// Session owns one conversation. All methods are safe for concurrent use;
// Backend.Chat is the only blocking call and runs without the lock held.
type Session struct {
	backend   api.Backend
	history   *store.History
	prefs     *store.Preferences
	input     *speech.Input
	output    *speech.Output
	clipboard Clipboard
	now       func() time.Time
	logger    *zap.Logger
	serial    bool

	// ctx bounds sends started by the session itself (spoken questions)
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	messages      []models.Message
	inFlight      int
	sendGen       uint64 // number of the newest send
	lastError     string
	lastTS        int64
	speechEnabled bool
	closed        bool
	subs          []chan struct{}

	wg sync.WaitGroup
}

// New creates a session and restores the persisted log and speech preference
func New(opts Options) (*Session, error) {
	if opts.Backend == nil {
		return nil, errors.New("session: backend is required")
	}

	switch opts.SendPolicy {
	case "", config.SendConcurrent, config.SendSerial:
	default:
		return nil, fmt.Errorf("session: unknown send policy %q", opts.SendPolicy)
	}

	logger := logging.OrNop(opts.Logger).Named("session")

	s := &Session{
		backend:   opts.Backend,
		history:   opts.History,
		prefs:     opts.Preferences,
		input:     opts.Input,
		output:    opts.Output,
		clipboard: opts.Clipboard,
		now:       opts.Clock,
		logger:    logger,
		serial:    opts.SendPolicy == config.SendSerial,
	}
	if s.history == nil {
		s.history = store.NewHistory(store.NewMemoryKV(), logger)
	}
	if s.prefs == nil {
		s.prefs = store.NewPreferences(store.NewMemoryKV(), logger)
	}
	if s.input == nil {
		s.input = speech.NewInput(nil, speech.InputConfig{Logger: logger})
	}
	if s.output == nil {
		s.output = speech.NewOutput(nil, speech.OutputConfig{Logger: logger})
	}
	if s.clipboard == nil {
		s.clipboard = SystemClipboard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.messages = s.history.Load()
	for _, m := range s.messages {
		s.lastTS = max(s.lastTS, m.Timestamp)
	}
	s.speechEnabled = s.prefs.SpeechEnabled()
	s.output.SetEnabled(s.speechEnabled)

	s.input.SetTranscriptHandler(s.sendTranscript)
	s.input.SetStateHandler(func(bool) { s.notify() })

	logger.Debug("session restored",
		zap.Int("messages", len(s.messages)),
		zap.Bool("speech_enabled", s.speechEnabled),
		zap.Bool("recognition", s.input.Available()),
		zap.Bool("synthesis", s.output.Available()))
	return s, nil
}

// Send submits a question. Blank input is ignored. A failed request keeps
// the question in the log and records a user-visible error; the same
// error is returned.
func (s *Session) Send(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.serial && s.inFlight > 0 {
		s.mu.Unlock()
		return ErrBusy
	}
	s.lastError = ""
	s.sendGen++
	gen := s.sendGen
	s.appendLocked(models.RoleUser, text)
	s.inFlight++
	s.mu.Unlock()
	s.notify()

	start := s.now()
	reply, err := s.backend.Chat(ctx, text)

	s.mu.Lock()
	s.inFlight--
	if s.closed {
		// Torn down while waiting; the result belongs to no one
		s.mu.Unlock()
		s.logger.Debug("result dropped after close", zap.Uint64("send", gen), zap.Error(err))
		return ErrClosed
	}
	if err != nil {
		// A newer send owns the error line
		if gen == s.sendGen {
			s.lastError = apierrors.Describe(err)
		}
		s.mu.Unlock()
		s.notify()
		s.logger.Warn("send failed",
			zap.Uint64("send", gen),
			zap.Int("status", apierrors.GetHTTPStatus(err)),
			zap.Error(err))
		return err
	}
	s.appendLocked(models.RoleAssistant, reply)
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("reply received",
		zap.Uint64("send", gen),
		zap.Int("chars", len(reply)),
		zap.Duration("elapsed", s.now().Sub(start)))

	if err := s.output.Speak(reply); err != nil {
		s.logger.Info("reply not spoken", zap.Error(err))
	}
	return nil
}

// appendLocked adds a message with a non-decreasing timestamp and persists
// the log. Persisting under the lock keeps stored snapshots in order.
func (s *Session) appendLocked(role models.Role, text string) {
	ts := s.now().UnixMilli()
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts
	s.messages = append(s.messages, models.NewMessage(role, text, ts))
	s.history.Save(s.messages)
}

// sendTranscript sends a spoken question. It runs on the recognition
// goroutine, so the request itself is made on a tracked goroutine.
func (s *Session) sendTranscript(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.Send(s.ctx, text); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Debug("spoken question failed", zap.Error(err))
		}
	}()
}

// StartListening begins voice capture. A missing capability is recorded
// as the session error and returned.
func (s *Session) StartListening() error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.input.Start(); err != nil {
		s.mu.Lock()
		s.lastError = apierrors.Describe(err)
		s.mu.Unlock()
		s.notify()
		s.logger.Info("listening unavailable", zap.Error(err))
		return err
	}
	return nil
}

// StopListening ends voice capture; what was heard is still sent
func (s *Session) StopListening() {
	s.input.Stop()
}

// ToggleListening starts capture when idle and stops it when listening
func (s *Session) ToggleListening() error {
	if s.input.Listening() {
		s.StopListening()
		return nil
	}
	return s.StartListening()
}

// SetSpeechEnabled updates and persists the speech output preference.
// An utterance already playing is not interrupted.
func (s *Session) SetSpeechEnabled(enabled bool) {
	s.mu.Lock()
	s.speechEnabled = enabled
	s.mu.Unlock()

	s.prefs.SetSpeechEnabled(enabled)
	s.output.SetEnabled(enabled)
	s.notify()
}

// ToggleSpeech flips the speech output preference and returns the new value
func (s *Session) ToggleSpeech() bool {
	s.mu.Lock()
	enabled := !s.speechEnabled
	s.mu.Unlock()

	s.SetSpeechEnabled(enabled)
	return enabled
}

// Copy writes the text of message index to the clipboard. Clipboard
// failures are logged and otherwise ignored.
func (s *Session) Copy(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.messages) {
		n := len(s.messages)
		s.mu.Unlock()
		return fmt.Errorf("message %d out of range (have %d)", index, n)
	}
	text := s.messages[index].Text
	s.mu.Unlock()

	if err := s.clipboard.WriteAll(text); err != nil {
		s.logger.Warn("copy to clipboard failed", zap.Int("index", index), zap.Error(err))
	}
	return nil
}

// ClearHistory empties the log and its stored copy
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.messages = []models.Message{}
	s.history.Clear()
	s.mu.Unlock()
	s.notify()
}

// State returns a snapshot of the session
func (s *Session) State() State {
	listening := s.input.Listening()

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Messages:      models.CloneMessages(s.messages),
		Pending:       s.inFlight > 0,
		LastError:     s.lastError,
		Listening:     listening,
		SpeechEnabled: s.speechEnabled,
	}
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce; the channel is closed by Close.
func (s *Session) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops recognition and playback, waits for spoken questions in
// flight, and closes subscriptions. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.input.Close()
	s.output.Close()
	s.wg.Wait()

	s.mu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()

	s.logger.Debug("session closed")
}
