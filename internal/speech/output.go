package speech

import (
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/models"
)

// Neutral playback settings; rate and pitch are not user adjustable
const (
	neutralRate  = 1.0
	neutralPitch = 1.0
)

// OutputConfig configures an Output controller
type OutputConfig struct {
	PreferredLang string
	Enabled       bool
	Logger        *zap.Logger
}

// Output speaks assistant replies through a Synthesizer, keeping at most
// one utterance audible.
type Output struct {
	synth         Synthesizer
	preferredLang string
	logger        *zap.Logger

	mu      sync.Mutex
	enabled bool
	closed  bool
}

// NewOutput creates a controller. s may be nil when the host has no
// speech synthesis; Speak is then a no-op.
func NewOutput(s Synthesizer, cfg OutputConfig) *Output {
	lang := cfg.PreferredLang
	if lang == "" {
		lang = models.DefaultVoiceLang
	}
	return &Output{
		synth:         s,
		preferredLang: lang,
		logger:        logging.OrNop(cfg.Logger).Named("speech.output"),
		enabled:       cfg.Enabled,
	}
}

// Available reports whether the host can synthesize speech
func (o *Output) Available() bool {
	return o.synth != nil
}

// Enabled reports the speech output preference
func (o *Output) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// SetEnabled updates the preference. An utterance already playing is
// left alone.
func (o *Output) SetEnabled(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enabled = enabled
}

// Speak cancels the current utterance and speaks text. It is a no-op
// when output is disabled or unavailable. Blank text only cancels.
func (o *Output) Speak(text string) error {
	o.mu.Lock()
	if !o.enabled || o.closed || o.synth == nil {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.synth.Cancel()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	voice := SelectVoice(o.synth.Voices(), o.preferredLang)
	u := Utterance{Text: text, Voice: voice, Rate: neutralRate, Pitch: neutralPitch}

	if err := o.synth.Speak(u); err != nil {
		o.logger.Warn("speak failed", zap.Error(err))
		return err
	}

	if voice != nil {
		o.logger.Debug("speaking", zap.String("voice", voice.ID), zap.String("lang", voice.Lang), zap.Int("chars", len(text)))
	} else {
		o.logger.Debug("speaking with default voice", zap.Int("chars", len(text)))
	}
	return nil
}

// Cancel stops any utterance in progress
func (o *Output) Cancel() {
	if o.synth != nil {
		o.synth.Cancel()
	}
}

// Close cancels playback and releases the synthesizer when it holds
// resources of its own
func (o *Output) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.Cancel()
	if c, ok := o.synth.(io.Closer); ok {
		if err := c.Close(); err != nil {
			o.logger.Debug("synthesizer close failed", zap.Error(err))
		}
	}
}
