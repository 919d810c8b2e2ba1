package speech

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/models"
)

// ErrClosed is returned by controllers used after Close
var ErrClosed = errors.New("speech controller is closed")

// InputConfig configures an Input controller
type InputConfig struct {
	Lang   string
	Logger *zap.Logger
}

// Input turns a Recognizer into a start/stop state machine that reports
// finalized transcripts. At most one recognition is listening at a time.
type Input struct {
	recognizer Recognizer
	opts       RecognitionOptions
	logger     *zap.Logger

	mu        sync.Mutex
	active    Recognition              // the listening instance, nil when idle
	live      map[Recognition]struct{} // started and not yet ended
	gen       uint64                   // bumped whenever the current instance is superseded
	listening bool
	closed    bool

	onTranscript func(string)
	onState      func(bool)

	wg sync.WaitGroup
}

// NewInput creates a controller. r may be nil when the host has no
// speech recognition; Start then reports CapabilityUnavailable.
func NewInput(r Recognizer, cfg InputConfig) *Input {
	lang := cfg.Lang
	if lang == "" {
		lang = models.DefaultRecognitionLang
	}
	return &Input{
		recognizer: r,
		opts:       RecognitionOptions{Lang: lang, Interim: false, Continuous: false},
		logger:     logging.OrNop(cfg.Logger).Named("speech.input"),
		live:       make(map[Recognition]struct{}),
	}
}

// SetTranscriptHandler registers the callback for finalized transcripts.
// It runs on the recognition's event goroutine and must not block.
func (in *Input) SetTranscriptHandler(f func(string)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onTranscript = f
}

// SetStateHandler registers the callback for listening changes
func (in *Input) SetStateHandler(f func(listening bool)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onState = f
}

// Available reports whether the host can recognize speech
func (in *Input) Available() bool {
	return in.recognizer != nil
}

// Listening reports whether a recognition is capturing
func (in *Input) Listening() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.listening
}

// Start begins a new single-shot recognition, aborting an active one first
func (in *Input) Start() error {
	if in.recognizer == nil {
		return apierrors.NewCapabilityError(apierrors.CapabilityRecognition)
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrClosed
	}
	// A stopped instance may still be winding down; abort it as well so
	// only the new one is ever capturing.
	prev := make([]Recognition, 0, len(in.live))
	for rec := range in.live {
		prev = append(prev, rec)
	}
	in.active = nil
	in.gen++
	gen := in.gen
	in.mu.Unlock()

	for _, rec := range prev {
		in.logger.Debug("aborting previous recognition")
		rec.Abort()
	}

	rec, err := in.recognizer.NewRecognition(in.opts)
	if err != nil {
		in.idle(gen)
		return fmt.Errorf("failed to create recognition: %w", err)
	}
	if err := rec.Start(); err != nil {
		in.idle(gen)
		return fmt.Errorf("failed to start recognition: %w", err)
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		rec.Abort()
		return ErrClosed
	}
	// Close marks closed before waiting, so a pump added while open is waited on
	in.live[rec] = struct{}{}
	in.wg.Add(1)
	go in.pump(rec, gen)

	if in.gen != gen {
		// Superseded while starting
		in.mu.Unlock()
		rec.Abort()
		return nil
	}
	in.active = rec
	changed := !in.listening
	in.listening = true
	notify := in.onState
	in.mu.Unlock()

	in.logger.Debug("recognition started", zap.String("lang", in.opts.Lang))
	if changed && notify != nil {
		notify(true)
	}
	return nil
}

// Stop ends the active recognition gracefully. A transcript heard before
// the stop is still delivered. No-op when idle.
func (in *Input) Stop() {
	in.mu.Lock()
	rec := in.active
	in.active = nil
	changed := in.listening
	in.listening = false
	notify := in.onState
	in.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	if changed && notify != nil {
		notify(false)
	}
}

// Cancel aborts the active recognition and discards its results
func (in *Input) Cancel() {
	in.mu.Lock()
	rec := in.active
	in.active = nil
	in.gen++
	changed := in.listening
	in.listening = false
	notify := in.onState
	in.mu.Unlock()

	if rec != nil {
		rec.Abort()
	}
	if changed && notify != nil {
		notify(false)
	}
}

// Close aborts every running recognition and waits for their events to
// drain. The controller cannot be restarted.
func (in *Input) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.gen++
	in.active = nil
	in.listening = false
	running := make([]Recognition, 0, len(in.live))
	for rec := range in.live {
		running = append(running, rec)
	}
	in.mu.Unlock()

	for _, rec := range running {
		rec.Abort()
	}
	in.wg.Wait()
}

// pump applies a recognition's events until its channel closes
func (in *Input) pump(rec Recognition, gen uint64) {
	defer in.wg.Done()

	for ev := range rec.Events() {
		switch ev.Kind {
		case EventResult:
			text := finalTranscript(ev.Results)
			if text == "" {
				continue
			}
			in.deliver(gen, text)
		case EventError:
			in.logger.Info("recognition error", zap.Error(ev.Err))
			in.idle(gen)
		case EventEnd:
			in.idle(gen)
		}
	}

	in.idle(gen)
	in.mu.Lock()
	delete(in.live, rec)
	in.mu.Unlock()
}

// deliver reports a transcript from the instance started as gen
func (in *Input) deliver(gen uint64, text string) {
	in.mu.Lock()
	if in.gen != gen || in.closed {
		in.mu.Unlock()
		in.logger.Debug("dropping transcript from superseded recognition")
		return
	}
	in.active = nil
	changed := in.listening
	in.listening = false
	onTranscript := in.onTranscript
	notify := in.onState
	in.mu.Unlock()

	if changed && notify != nil {
		notify(false)
	}
	if onTranscript != nil {
		onTranscript(text)
	}
}

// idle returns to Idle if gen is still the current instance
func (in *Input) idle(gen uint64) {
	in.mu.Lock()
	if in.gen != gen {
		in.mu.Unlock()
		return
	}
	in.active = nil
	changed := in.listening
	in.listening = false
	notify := in.onState
	in.mu.Unlock()

	if changed && notify != nil {
		notify(false)
	}
}
