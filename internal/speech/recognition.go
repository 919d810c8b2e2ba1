// Package speech wraps host speech recognition and synthesis
// capabilities into small controllers owned by a chat session.
package speech

import "strings"

// RecognitionResult is one segment reported by a recognition engine
type RecognitionResult struct {
	Transcript string
	Final      bool
}

// RecognitionEventKind distinguishes recognition notifications
type RecognitionEventKind int

const (
	EventResult RecognitionEventKind = iota
	EventError
	EventEnd
)

func (k RecognitionEventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// RecognitionEvent is a notification from an active recognition. Results
// holds every segment recognized so far when Kind is EventResult.
type RecognitionEvent struct {
	Kind    RecognitionEventKind
	Results []RecognitionResult
	Err     error
}

// RecognitionOptions configures a recognition instance
type RecognitionOptions struct {
	Lang       string
	Interim    bool
	Continuous bool
}

// Recognizer creates single-shot recognition instances. A host without
// speech recognition has no Recognizer.
type Recognizer interface {
	NewRecognition(opts RecognitionOptions) (Recognition, error)
}

// Recognition is one capture session. After Start returns nil the
// instance reports zero or more results and then ends; the channel
// returned by Events is closed after the last event. Events must be
// delivered without blocking on the reader, so implementations buffer
// them or send from their own goroutine.
type Recognition interface {
	Start() error
	// Stop ends capture gracefully; what was heard is still reported
	Stop()
	// Abort ends capture and discards pending results
	Abort()
	Events() <-chan RecognitionEvent
}

// finalTranscript joins the final segments of results, skipping interim ones
func finalTranscript(results []RecognitionResult) string {
	var parts []string
	for _, r := range results {
		if !r.Final {
			continue
		}
		if t := strings.TrimSpace(r.Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
