package speech

import "strings"

// Voice is a synthesis voice offered by the host
type Voice struct {
	ID      string // identifier passed back to the host when speaking
	Name    string
	Lang    string // BCP 47 style locale, e.g. "en-IN"
	Default bool
}

// Utterance is a single playback unit
type Utterance struct {
	Text  string
	Voice *Voice // nil selects the host default voice
	Rate  float64
	Pitch float64
}

// Synthesizer is the host speech synthesis capability. It plays at most
// one utterance; the voice list may change while the host loads voices.
type Synthesizer interface {
	Voices() []Voice
	Speak(u Utterance) error
	Cancel()
}

// SelectVoice picks a voice for the next utterance: one matching the
// preferred regional locale, else any English voice, else the first
// voice. It returns nil when the host offers no voices.
func SelectVoice(voices []Voice, preferredLang string) *Voice {
	if len(voices) == 0 {
		return nil
	}

	want := normalizeLang(preferredLang)
	if want != "" {
		for i := range voices {
			if strings.Contains(normalizeLang(voices[i].Lang), want) {
				return &voices[i]
			}
		}
	}

	for i := range voices {
		if isEnglish(voices[i].Lang) {
			return &voices[i]
		}
	}

	return &voices[0]
}

func normalizeLang(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
}

func isEnglish(lang string) bool {
	l := normalizeLang(lang)
	return l == "en" || strings.HasPrefix(l, "en-")
}
