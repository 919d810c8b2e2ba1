package models

// Backend endpoints, relative to the configured base URL
const (
	EndpointChat   = "/chat"
	EndpointHealth = "/health"
)

// Storage keys in the device-local store
const (
	KeyMessages = "ace:messages"
	KeySpeech   = "ace:speech"
)

const (
	// AssistantName is how assistant turns are labelled
	AssistantName = "ACE Orbit"

	// EmptyHint is shown while the log has no messages
	EmptyHint = "Ask about admissions, departments, fees, facilities, and more."

	// DefaultBackendURL matches the development backend
	DefaultBackendURL = "http://localhost:8000"

	// DefaultRecognitionLang is the locale requested from speech recognition
	DefaultRecognitionLang = "en-IN"

	// DefaultVoiceLang is the preferred regional English voice
	DefaultVoiceLang = "en-IN"

	// MaxMessageLength mirrors the backend's request validation
	MaxMessageLength = 4000
)

// DefaultHeaders returns headers sent with every backend request
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"User-Agent":   "aceorbit/0.1",
	}
}
