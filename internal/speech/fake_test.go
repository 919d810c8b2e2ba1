package speech

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRecognizer hands out fakeRecognitions the test drives by hand
type fakeRecognizer struct {
	mu           sync.Mutex
	recs         []*fakeRecognition
	newErr       error
	startErr     error
	closeOnAbort bool
	// gate, when set, holds every Start until it is closed; entered
	// receives a value as each Start begins waiting
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeRecognizer) NewRecognition(opts RecognitionOptions) (Recognition, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	rec := &fakeRecognition{
		opts:         opts,
		events:       make(chan RecognitionEvent, 8),
		startErr:     f.startErr,
		closeOnAbort: f.closeOnAbort,
		gate:         f.gate,
		entered:      f.entered,
	}
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
	return rec, nil
}

func (f *fakeRecognizer) last(t *testing.T) *fakeRecognition {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recs) == 0 {
		t.Fatal("no recognition created")
	}
	return f.recs[len(f.recs)-1]
}

type fakeRecognition struct {
	opts         RecognitionOptions
	events       chan RecognitionEvent
	startErr     error
	closeOnAbort bool
	gate         chan struct{}
	entered      chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	aborted bool
	once    sync.Once
}

func (r *fakeRecognition) Start() error {
	if r.gate != nil {
		if r.entered != nil {
			r.entered <- struct{}{}
		}
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *fakeRecognition) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *fakeRecognition) Abort() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
	if r.closeOnAbort {
		r.finish()
	}
}

func (r *fakeRecognition) Events() <-chan RecognitionEvent {
	return r.events
}

func (r *fakeRecognition) say(text string) {
	r.events <- RecognitionEvent{Kind: EventResult, Results: []RecognitionResult{{Transcript: text, Final: true}}}
}

func (r *fakeRecognition) fail(err error) {
	r.events <- RecognitionEvent{Kind: EventError, Err: err}
}

// finish ends the recognition and closes its channel
func (r *fakeRecognition) finish() {
	r.once.Do(func() {
		r.events <- RecognitionEvent{Kind: EventEnd}
		close(r.events)
	})
}

func (r *fakeRecognition) wasAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

func (r *fakeRecognition) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// fakeSynth records utterances instead of playing them
type fakeSynth struct {
	mu       sync.Mutex
	voices   []Voice
	spoken   []Utterance
	calls    []string
	speakErr error
	closed   bool
}

func (s *fakeSynth) Voices() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voices
}

func (s *fakeSynth) Speak(u Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "speak")
	if s.speakErr != nil {
		return s.speakErr
	}
	s.spoken = append(s.spoken, u)
	return nil
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "cancel")
}

func (s *fakeSynth) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errFake = errors.New("fake failure")

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript")
		return ""
	}
}
