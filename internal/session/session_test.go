package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/diogo/aceorbit/internal/config"
	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/models"
	"github.com/diogo/aceorbit/internal/speech"
	"github.com/diogo/aceorbit/internal/store"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type harness struct {
	s       *Session
	kv      *store.MemoryKV
	backend *fakeBackend
	synth   *fakeSynth
	rz      *fakeRecognizer
	clip    *fakeClipboard
}

func newHarness(t *testing.T, backend *fakeBackend, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		kv:      store.NewMemoryKV(),
		backend: backend,
		synth:   &fakeSynth{},
		rz:      &fakeRecognizer{},
		clip:    &fakeClipboard{},
	}
	h.s = h.open(t, mutate...)
	return h
}

// open builds a session over the harness store, as a page reload would
func (h *harness) open(t *testing.T, mutate ...func(*Options)) *Session {
	t.Helper()
	opts := Options{
		Backend:     h.backend,
		History:     store.NewHistory(h.kv, nil),
		Preferences: store.NewPreferences(h.kv, nil),
		Input:       speech.NewInput(h.rz, speech.InputConfig{}),
		Output:      speech.NewOutput(h.synth, speech.OutputConfig{Enabled: true}),
		Clipboard:   h.clip,
		Clock:       func() time.Time { return epoch },
	}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func (h *harness) stored(t *testing.T) []models.Message {
	t.Helper()
	data, err := h.kv.Get(models.KeyMessages)
	if err != nil {
		t.Fatalf("stored log missing: %v", err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("stored log is not JSON: %v", err)
	}
	return msgs
}

func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without backend")
	}
	if _, err := New(Options{Backend: replyWith(""), SendPolicy: "fifo"}); err == nil {
		t.Error("expected error for unknown send policy")
	}
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Options{Backend: replyWith("ok")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	st := s.State()
	if len(st.Messages) != 0 || st.Messages == nil {
		t.Errorf("Messages = %#v, want empty log", st.Messages)
	}
	if !st.SpeechEnabled {
		t.Error("speech output should default to enabled")
	}
	if st.Pending || st.Listening || st.LastError != "" {
		t.Errorf("unexpected initial state %+v", st)
	}
}

func TestSend_Success(t *testing.T) {
	h := newHarness(t, replyWith("Admissions open in June."))

	if err := h.s.Send(context.Background(), "  When do admissions open? "); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	want := []models.Message{
		{Role: models.RoleUser, Text: "When do admissions open?", Timestamp: epoch.UnixMilli()},
		{Role: models.RoleAssistant, Text: "Admissions open in June.", Timestamp: epoch.UnixMilli()},
	}
	st := h.s.State()
	if diff := cmp.Diff(want, st.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, h.stored(t)); diff != "" {
		t.Errorf("stored log mismatch (-want +got):\n%s", diff)
	}
	if st.Pending {
		t.Error("Pending = true after reply")
	}
	if got := h.backend.questions(); len(got) != 1 || got[0] != "When do admissions open?" {
		t.Errorf("backend asked %v", got)
	}
	if got := h.synth.said(); len(got) != 1 || got[0] != "Admissions open in June." {
		t.Errorf("spoken = %v", got)
	}
}

func TestSend_BlankIsIgnored(t *testing.T) {
	h := newHarness(t, replyWith("unused"))

	for _, in := range []string{"", "   ", "\n\t"} {
		if err := h.s.Send(context.Background(), in); err != nil {
			t.Errorf("Send(%q) error: %v", in, err)
		}
	}
	if len(h.backend.questions()) != 0 {
		t.Error("blank input must not reach the backend")
	}
	if len(h.s.State().Messages) != 0 {
		t.Error("blank input must not be logged")
	}
}

func TestSend_EmptyReplyIsKept(t *testing.T) {
	h := newHarness(t, replyWith(""))

	if err := h.s.Send(context.Background(), "Hi"); err != nil {
		t.Fatal(err)
	}
	msgs := h.s.State().Messages
	if len(msgs) != 2 || msgs[1].Role != models.RoleAssistant || msgs[1].Text != "" {
		t.Errorf("messages = %+v, want an empty assistant reply", msgs)
	}
}

func TestSend_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"detail", apierrors.NewAPIError(502, "/chat", "Upstream error: quota exceeded"), "Upstream error: quota exceeded"},
		{"status only", apierrors.NewAPIError(500, "/chat", ""), "Request failed: 500"},
		{"network", apierrors.NewNetworkError("chat", "/chat", errors.New("connection refused")), "Request failed: connection refused"},
		{"malformed", apierrors.NewParseError("invalid JSON", 200), "Request failed: invalid response (200)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, failWith(tt.err))

			err := h.s.Send(context.Background(), "Fees?")
			if !errors.Is(err, tt.err) {
				t.Errorf("Send() error = %v, want %v", err, tt.err)
			}

			st := h.s.State()
			if st.LastError != tt.want {
				t.Errorf("LastError = %q, want %q", st.LastError, tt.want)
			}
			if st.Pending {
				t.Error("Pending = true after failure")
			}
			if len(st.Messages) != 1 || st.Messages[0].Role != models.RoleUser {
				t.Errorf("failure must keep only the question, got %+v", st.Messages)
			}
			if len(h.stored(t)) != 1 {
				t.Errorf("stored %d messages, want 1", len(h.stored(t)))
			}
			if len(h.synth.said()) != 0 {
				t.Error("failures must not be spoken")
			}
		})
	}
}

func TestSend_ClearsPreviousError(t *testing.T) {
	fail := true
	backend := newFakeBackend(func(context.Context, string) (string, error) {
		if fail {
			return "", apierrors.NewAPIError(503, "/chat", "")
		}
		return "Back online.", nil
	})
	h := newHarness(t, backend)

	_ = h.s.Send(context.Background(), "first")
	if h.s.State().LastError == "" {
		t.Fatal("expected an error after the failed send")
	}

	fail = false
	if err := h.s.Send(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	if got := h.s.State().LastError; got != "" {
		t.Errorf("LastError = %q, want cleared", got)
	}
	if n := len(h.s.State().Messages); n != 3 {
		t.Errorf("messages = %d, want 3", n)
	}
}

func TestSend_PendingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	backend := newFakeBackend(func(context.Context, string) (string, error) {
		<-release
		return "Done.", nil
	})
	h := newHarness(t, backend)

	errc := make(chan error, 1)
	go func() { errc <- h.s.Send(context.Background(), "Library hours?") }()
	waitCall(t, backend)

	st := h.s.State()
	if !st.Pending {
		t.Error("Pending = false while a request is in flight")
	}
	if len(st.Messages) != 1 {
		t.Errorf("question should be logged before the reply, got %d messages", len(st.Messages))
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if h.s.State().Pending {
		t.Error("Pending = true after the reply")
	}
}

func TestSend_ConcurrentStaleFailureIsIgnored(t *testing.T) {
	release := make(chan struct{})
	backend := newFakeBackend(func(_ context.Context, msg string) (string, error) {
		if msg == "first" {
			<-release
			return "", apierrors.NewAPIError(502, "/chat", "stale")
		}
		return "second reply", nil
	})
	h := newHarness(t, backend)

	errc := make(chan error, 1)
	go func() { errc <- h.s.Send(context.Background(), "first") }()
	waitCall(t, backend)

	if err := h.s.Send(context.Background(), "second"); err != nil {
		t.Fatalf("concurrent Send() error: %v", err)
	}
	if !h.s.State().Pending {
		t.Error("Pending must stay true while the first request is in flight")
	}

	close(release)
	if err := <-errc; err == nil {
		t.Fatal("first send should fail")
	}

	st := h.s.State()
	if st.LastError != "" {
		t.Errorf("LastError = %q, a superseded failure must not be shown", st.LastError)
	}
	if st.Pending {
		t.Error("Pending = true after both requests finished")
	}

	var texts []string
	for _, m := range st.Messages {
		texts = append(texts, string(m.Role)+":"+m.Text)
	}
	want := []string{"user:first", "user:second", "assistant:second reply"}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_SerialPolicy(t *testing.T) {
	release := make(chan struct{})
	backend := newFakeBackend(func(context.Context, string) (string, error) {
		<-release
		return "ok", nil
	})
	h := newHarness(t, backend, func(o *Options) { o.SendPolicy = config.SendSerial })

	errc := make(chan error, 1)
	go func() { errc <- h.s.Send(context.Background(), "first") }()
	waitCall(t, backend)

	if err := h.s.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("Send() while pending = %v, want ErrBusy", err)
	}
	if n := len(h.s.State().Messages); n != 1 {
		t.Errorf("rejected send must not be logged, have %d messages", n)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if err := h.s.Send(context.Background(), "third"); err != nil {
		t.Errorf("Send() after the reply = %v", err)
	}
}

func TestSend_TimestampsNeverDecrease(t *testing.T) {
	clock := &stepClock{times: []time.Time{
		epoch.Add(10 * time.Second), // question
		epoch.Add(10 * time.Second), // request start
		epoch.Add(5 * time.Second),  // reply, clock stepped back
	}}
	h := newHarness(t, replyWith("ok"), func(o *Options) { o.Clock = clock.Now })

	if err := h.s.Send(context.Background(), "Hi"); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Send(context.Background(), "Again"); err != nil {
		t.Fatal(err)
	}

	msgs := h.s.State().Messages
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Errorf("timestamp %d (%d) is before %d (%d)", i, msgs[i].Timestamp, i-1, msgs[i-1].Timestamp)
		}
	}
}

func TestNew_RestoresLogAndClampsAfterIt(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	if err := h.s.Send(context.Background(), "Hi"); err != nil {
		t.Fatal(err)
	}

	// Reopen with a clock behind the stored log
	s := h.open(t, func(o *Options) { o.Clock = func() time.Time { return epoch.Add(-time.Hour) } })
	if n := len(s.State().Messages); n != 2 {
		t.Fatalf("restored %d messages, want 2", n)
	}
	if err := s.Send(context.Background(), "Later"); err != nil {
		t.Fatal(err)
	}
	msgs := s.State().Messages
	if msgs[2].Timestamp < msgs[1].Timestamp {
		t.Errorf("new message %d is older than restored %d", msgs[2].Timestamp, msgs[1].Timestamp)
	}
}

func TestSpeechToggleOffAndOnQueuesNothing(t *testing.T) {
	h := newHarness(t, replyWith("unused"))

	if h.s.ToggleSpeech() {
		t.Fatal("first toggle should disable speech")
	}
	if !h.s.ToggleSpeech() {
		t.Fatal("second toggle should enable speech again")
	}

	if got := h.synth.said(); len(got) != 0 {
		t.Errorf("spoken = %v, want nothing", got)
	}
	if len(h.backend.questions()) != 0 {
		t.Error("toggling must not reach the backend")
	}
	if !h.s.State().SpeechEnabled {
		t.Error("SpeechEnabled = false after toggling twice")
	}
}

func TestSpeechPreference(t *testing.T) {
	h := newHarness(t, replyWith("Spoken?"))

	if enabled := h.s.ToggleSpeech(); enabled {
		t.Fatal("ToggleSpeech() should disable the default-on preference")
	}
	if h.s.State().SpeechEnabled {
		t.Error("SpeechEnabled = true after toggle")
	}
	if err := h.s.Send(context.Background(), "Hi"); err != nil {
		t.Fatal(err)
	}
	if len(h.synth.said()) != 0 {
		t.Error("disabled speech output must not speak")
	}

	if store.NewPreferences(h.kv, nil).SpeechEnabled() {
		t.Error("preference was not persisted")
	}
	if s := h.open(t); s.State().SpeechEnabled {
		t.Error("preference was not restored")
	}

	h.s.SetSpeechEnabled(true)
	if err := h.s.Send(context.Background(), "Again"); err != nil {
		t.Fatal(err)
	}
	if got := h.synth.said(); len(got) != 1 {
		t.Errorf("spoken = %v, want one reply", got)
	}
}

func TestListening_CapabilityUnavailable(t *testing.T) {
	h := newHarness(t, replyWith("ok"), func(o *Options) {
		o.Input = speech.NewInput(nil, speech.InputConfig{})
	})

	err := h.s.StartListening()
	if !apierrors.IsCapabilityError(err) {
		t.Fatalf("StartListening() = %v, want capability error", err)
	}
	st := h.s.State()
	if st.Listening {
		t.Error("Listening = true without recognizer")
	}
	if st.LastError != "Speech Recognition not supported on this host." {
		t.Errorf("LastError = %q", st.LastError)
	}
	if err := h.s.ToggleListening(); !apierrors.IsCapabilityError(err) {
		t.Errorf("ToggleListening() = %v", err)
	}
}

func TestListening_TranscriptIsSent(t *testing.T) {
	h := newHarness(t, replyWith("The hostel fee is listed on the portal."))

	if err := h.s.ToggleListening(); err != nil {
		t.Fatalf("ToggleListening() error: %v", err)
	}
	if !h.s.State().Listening {
		t.Fatal("Listening = false after start")
	}

	h.rz.last().say("hostel fees")

	if got := waitCall(t, h.backend); got != "hostel fees" {
		t.Errorf("backend asked %q, want the transcript", got)
	}
	waitFor(t, "the reply", func() bool { return len(h.s.State().Messages) == 2 })
	if h.s.State().Listening {
		t.Error("Listening = true after the transcript")
	}
}

func TestListening_ToggleStops(t *testing.T) {
	h := newHarness(t, replyWith("ok"))

	if err := h.s.ToggleListening(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.ToggleListening(); err != nil {
		t.Fatal(err)
	}
	if h.s.State().Listening {
		t.Error("second toggle should stop listening")
	}
}

func TestCopy(t *testing.T) {
	h := newHarness(t, replyWith("Call the admissions office."))
	if err := h.s.Send(context.Background(), "Who do I call?"); err != nil {
		t.Fatal(err)
	}

	st := h.s.State()
	if err := h.s.Copy(st.LastReply()); err != nil {
		t.Fatalf("Copy() error: %v", err)
	}
	if len(h.clip.written) != 1 || h.clip.written[0] != "Call the admissions office." {
		t.Errorf("clipboard = %v", h.clip.written)
	}

	for _, idx := range []int{-1, 2} {
		if err := h.s.Copy(idx); err == nil {
			t.Errorf("Copy(%d) should fail", idx)
		}
	}
}

func TestCopy_ClipboardFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, replyWith("ok"), func(o *Options) { o.Logger = zap.New(core) })
	h.clip.err = errors.New("no display")

	if err := h.s.Send(context.Background(), "Hi"); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Copy(0); err != nil {
		t.Errorf("Copy() = %v, clipboard failures are best-effort", err)
	}
	if n := logs.FilterMessage("copy to clipboard failed").Len(); n != 1 {
		t.Errorf("logged %d clipboard failures, want 1", n)
	}
}

func TestState_LastReply(t *testing.T) {
	st := State{Messages: []models.Message{
		{Role: models.RoleUser, Text: "a"},
		{Role: models.RoleAssistant, Text: "b"},
		{Role: models.RoleUser, Text: "c"},
	}}
	if got := st.LastReply(); got != 1 {
		t.Errorf("LastReply() = %d, want 1", got)
	}
	if got := (State{}).LastReply(); got != -1 {
		t.Errorf("LastReply() on empty = %d, want -1", got)
	}
}

func TestState_IsACopy(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	_ = h.s.Send(context.Background(), "Hi")

	st := h.s.State()
	st.Messages[0].Text = "changed"
	if h.s.State().Messages[0].Text != "Hi" {
		t.Error("State() must not expose the internal log")
	}
}

func TestClearHistory(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	_ = h.s.Send(context.Background(), "Hi")

	h.s.ClearHistory()
	if n := len(h.s.State().Messages); n != 0 {
		t.Errorf("messages = %d after clear", n)
	}
	if _, err := h.kv.Get(models.KeyMessages); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stored log should be removed, Get() = %v", err)
	}
	if s := h.open(t); len(s.State().Messages) != 0 {
		t.Error("cleared log was restored")
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	ch := h.s.Subscribe()

	_ = h.s.Send(context.Background(), "Hi")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after Send")
	}

	h.s.Close()
	for range ch {
	}
	if _, ok := <-h.s.Subscribe(); ok {
		t.Error("Subscribe() after Close should return a closed channel")
	}
}

func TestSend_ReplyAfterCloseIsDropped(t *testing.T) {
	release := make(chan struct{})
	backend := newFakeBackend(func(context.Context, string) (string, error) {
		<-release
		return "Too late", nil
	})
	h := newHarness(t, backend)

	errc := make(chan error, 1)
	go func() { errc <- h.s.Send(context.Background(), "Still there?") }()
	waitCall(t, backend)

	if got := len(h.stored(t)); got != 1 {
		t.Fatalf("stored before reply = %d, want 1", got)
	}

	h.s.Close()
	close(release)

	if err := <-errc; !errors.Is(err, ErrClosed) {
		t.Errorf("Send() = %v, want ErrClosed", err)
	}
	if got := len(h.stored(t)); got != 1 {
		t.Errorf("stored after reply = %d, want 1", got)
	}
	if got := len(h.s.State().Messages); got != 1 {
		t.Errorf("messages after reply = %d, want 1", got)
	}
	if got := h.synth.said(); len(got) != 0 {
		t.Errorf("spoken = %v, want nothing after Close", got)
	}
}

func TestClose(t *testing.T) {
	backend := newFakeBackend(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := newHarness(t, backend)

	// A spoken question still in flight is cancelled by Close
	if err := h.s.StartListening(); err != nil {
		t.Fatal(err)
	}
	h.rz.last().say("are you there")
	waitCall(t, backend)

	done := make(chan struct{})
	go func() {
		h.s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}

	h.s.Close()
	if err := h.s.Send(context.Background(), "Hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
	if err := h.s.StartListening(); !errors.Is(err, ErrClosed) {
		t.Errorf("StartListening() after Close = %v, want ErrClosed", err)
	}
	if h.synth.cancels == 0 {
		t.Error("Close should cancel playback")
	}
}
