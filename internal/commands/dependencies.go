package commands

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diogo/aceorbit/internal/api"
	"github.com/diogo/aceorbit/internal/config"
	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/render"
	"github.com/diogo/aceorbit/internal/session"
	"github.com/diogo/aceorbit/internal/speech"
	"github.com/diogo/aceorbit/internal/store"
	"github.com/diogo/aceorbit/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(sess tui.ChatSession, opts render.Options) error
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(sess tui.ChatSession, opts render.Options) error {
	return tui.RunChat(sess, opts)
}

// Dependencies holds the external dependencies for the commands.
// Nil fields fall back to the production implementations.
type Dependencies struct {
	// HTTPClient carries backend requests; nil uses the TLS client.
	HTTPClient api.HTTPDoer

	// TUI is the terminal user interface.
	TUI TUIInterface

	// Clipboard receives copied replies; nil uses the system clipboard.
	Clipboard session.Clipboard

	// Logger overrides the log file logger.
	Logger *zap.Logger

	// Clock stamps messages; nil uses time.Now.
	Clock func() time.Time
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		TUI: &DefaultTUI{},
	}
}

func (d *Dependencies) ui() TUIInterface {
	if d == nil || d.TUI == nil {
		return &DefaultTUI{}
	}
	return d.TUI
}

// app is everything one command invocation needs to talk to the backend
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	client  *api.Client
	session *session.Session
	synth   *speech.ExecSynthesizer // nil when voice output is unavailable
}

// appOptions selects the speech capabilities an invocation wires
type appOptions struct {
	listen bool
	speak  bool
}

func (d *Dependencies) logger(cfg config.Config) *zap.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	path, err := config.GetLogPath()
	if err != nil {
		return zap.NewNop()
	}
	return logging.NewOrNop(path, cfg.Verbose)
}

func (d *Dependencies) newClient(cfg config.Config, logger *zap.Logger) (*api.Client, error) {
	opts := []api.ClientOption{
		api.WithBaseURL(cfg.BackendURL),
		api.WithTimeout(cfg.Timeout()),
		api.WithLogger(logger),
	}
	if d != nil && d.HTTPClient != nil {
		opts = append(opts, api.WithHTTPClient(d.HTTPClient))
	}
	return api.NewClient(opts...)
}

// openStore opens the device-local store under the config directory
func openStore(logger *zap.Logger) (*store.History, *store.Preferences, error) {
	dir, err := config.GetStoreDir()
	if err != nil {
		return nil, nil, err
	}
	kv, err := store.NewFileKV(dir)
	if err != nil {
		return nil, nil, err
	}
	return store.NewHistory(kv, logger), store.NewPreferences(kv, logger), nil
}

// openApp wires the client, store, speech capabilities and session
func (d *Dependencies) openApp(cfg config.Config, opts appOptions) (*app, error) {
	logger := d.logger(cfg)

	client, err := d.newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	history, prefs, err := openStore(logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, client: client}

	var recognizer speech.Recognizer
	if opts.listen {
		if r := newRecognizer(cfg.Speech, logger); r != nil {
			recognizer = r
		}
	}
	var synth speech.Synthesizer
	if opts.speak {
		if s := newSynthesizer(cfg.Speech, logger); s != nil {
			a.synth = s
			synth = s
		}
	}

	sessOpts := session.Options{
		Backend:     client,
		History:     history,
		Preferences: prefs,
		Input:       speech.NewInput(recognizer, speech.InputConfig{Lang: cfg.Speech.RecognitionLang, Logger: logger}),
		Output: speech.NewOutput(synth, speech.OutputConfig{
			PreferredLang: cfg.Speech.PreferredVoiceLang,
			Enabled:       true,
			Logger:        logger,
		}),
		Logger:     logger,
		SendPolicy: cfg.SendPolicy,
	}
	if d != nil {
		sessOpts.Clipboard = d.Clipboard
		sessOpts.Clock = d.Clock
	}

	a.session, err = session.New(sessOpts)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close tears the session down and flushes the log
func (a *app) Close() {
	a.session.Close()
	_ = a.logger.Sync()
}

// newRecognizer returns nil when no recognizer command is configured or found
func newRecognizer(cfg config.SpeechConfig, logger *zap.Logger) *speech.ExecRecognizer {
	fields := strings.Fields(cfg.RecognizerCommand)
	if len(fields) == 0 {
		return nil
	}
	r, err := speech.NewExecRecognizer(logger, fields[0], fields[1:]...)
	if err != nil {
		logger.Info("voice input unavailable", zap.String("command", fields[0]), zap.Error(err))
		return nil
	}
	return r
}

// newSynthesizer returns nil when the synthesizer command is empty or missing
func newSynthesizer(cfg config.SpeechConfig, logger *zap.Logger) *speech.ExecSynthesizer {
	name := strings.TrimSpace(cfg.SynthesizerCommand)
	if name == "" {
		return nil
	}
	s, err := speech.NewExecSynthesizer(logger, name)
	if err != nil {
		logger.Info("voice output unavailable", zap.String("command", name), zap.Error(err))
		return nil
	}
	return s
}

func writeLine(w io.Writer, s string) {
	_, _ = io.WriteString(w, s+"\n")
}
