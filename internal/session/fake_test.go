package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/diogo/aceorbit/internal/speech"
)

// fakeBackend answers Chat from a handler and records the questions
type fakeBackend struct {
	mu      sync.Mutex
	asked   []string
	handler func(ctx context.Context, message string) (string, error)
	calls   chan string
}

func newFakeBackend(handler func(ctx context.Context, message string) (string, error)) *fakeBackend {
	return &fakeBackend{handler: handler, calls: make(chan string, 16)}
}

func replyWith(reply string) *fakeBackend {
	return newFakeBackend(func(context.Context, string) (string, error) { return reply, nil })
}

func failWith(err error) *fakeBackend {
	return newFakeBackend(func(context.Context, string) (string, error) { return "", err })
}

func (b *fakeBackend) Chat(ctx context.Context, message string) (string, error) {
	b.mu.Lock()
	b.asked = append(b.asked, message)
	b.mu.Unlock()
	b.calls <- message
	return b.handler(ctx, message)
}

func (b *fakeBackend) questions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.asked...)
}

// fakeSynth records spoken text
type fakeSynth struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
}

func (s *fakeSynth) Voices() []speech.Voice { return nil }

func (s *fakeSynth) Speak(u speech.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, u.Text)
	return nil
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSynth) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// fakeRecognizer creates recognitions that say one scripted phrase when stopped
type fakeRecognizer struct {
	mu   sync.Mutex
	recs []*fakeRecognition
}

func (r *fakeRecognizer) NewRecognition(speech.RecognitionOptions) (speech.Recognition, error) {
	rec := &fakeRecognition{events: make(chan speech.RecognitionEvent, 4)}
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	return rec, nil
}

func (r *fakeRecognizer) last() *fakeRecognition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recs[len(r.recs)-1]
}

type fakeRecognition struct {
	events chan speech.RecognitionEvent
	once   sync.Once
}

func (r *fakeRecognition) Start() error { return nil }

func (r *fakeRecognition) Stop() {}

func (r *fakeRecognition) Abort() { r.end() }

func (r *fakeRecognition) Events() <-chan speech.RecognitionEvent { return r.events }

func (r *fakeRecognition) say(text string) {
	r.events <- speech.RecognitionEvent{
		Kind:    speech.EventResult,
		Results: []speech.RecognitionResult{{Transcript: text, Final: true}},
	}
	r.end()
}

func (r *fakeRecognition) end() {
	r.once.Do(func() {
		r.events <- speech.RecognitionEvent{Kind: speech.EventEnd}
		close(r.events)
	})
}

// fakeClipboard records writes
type fakeClipboard struct {
	mu      sync.Mutex
	written []string
	err     error
}

func (c *fakeClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.written = append(c.written, text)
	return nil
}

// stepClock returns scripted instants, repeating the last one
type stepClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitCall(t *testing.T, b *fakeBackend) string {
	t.Helper()
	select {
	case m := <-b.calls:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a backend call")
		return ""
	}
}
