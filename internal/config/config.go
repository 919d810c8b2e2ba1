// Package config handles configuration for aceorbit.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/diogo/aceorbit/internal/models"
)

// Send policies for overlapping requests
const (
	SendConcurrent = "concurrent"
	SendSerial     = "serial"
)

// Environment variables that override the config file
const (
	EnvBackendURL     = "ACEORBIT_BACKEND_URL"
	EnvViteBackendURL = "VITE_BACKEND_URL" // same variable the web front-end reads
	EnvSendPolicy     = "ACEORBIT_SEND_POLICY"
)

// SpeechConfig configures the host speech capabilities
type SpeechConfig struct {
	// RecognizerCommand captures one utterance and prints the transcript.
	// Empty disables voice input.
	RecognizerCommand string `json:"recognizer_command"`
	RecognitionLang   string `json:"recognition_lang"`
	// SynthesizerCommand is an espeak-compatible program. Empty disables voice output.
	SynthesizerCommand string `json:"synthesizer_command"`
	PreferredVoiceLang string `json:"preferred_voice_lang"`
}

// Config represents the user configuration
type Config struct {
	BackendURL string `json:"backend_url"`
	// TimeoutSeconds bounds a single /chat request.
	TimeoutSeconds int `json:"timeout_seconds"`
	// SendPolicy is "concurrent" (overlapping sends allowed) or "serial"
	// (a send while another is pending is rejected).
	SendPolicy      string       `json:"send_policy"`
	Speech          SpeechConfig `json:"speech"`
	CopyToClipboard bool         `json:"copy_to_clipboard"`
	MarkdownStyle   string       `json:"markdown_style"` // "dark", "light" or "notty"
	Verbose         bool         `json:"verbose"`
}

// DefaultSpeechConfig returns the default speech configuration
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{
		RecognizerCommand:  "",
		RecognitionLang:    models.DefaultRecognitionLang,
		SynthesizerCommand: "espeak-ng",
		PreferredVoiceLang: models.DefaultVoiceLang,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BackendURL:      models.DefaultBackendURL,
		TimeoutSeconds:  30,
		SendPolicy:      SendConcurrent,
		Speech:          DefaultSpeechConfig(),
		CopyToClipboard: false,
		MarkdownStyle:   "dark",
		Verbose:         false,
	}
}

// Timeout returns the request timeout as a duration
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the configuration for values the client cannot use
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend_url %q: scheme must be http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend_url %q: missing host", c.BackendURL)
	}

	switch c.SendPolicy {
	case SendConcurrent, SendSerial:
	default:
		return fmt.Errorf("invalid send_policy %q: must be %s or %s", c.SendPolicy, SendConcurrent, SendSerial)
	}

	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid timeout_seconds %d", c.TimeoutSeconds)
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".aceorbit"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetStoreDir returns the directory of the device-local store
func GetStoreDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "store"), nil
}

// GetLogPath returns the path of the log file
func GetLogPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "aceorbit.log"), nil
}

// LoadConfig loads the configuration from disk and applies environment
// overrides. A .env file in the working directory is loaded first when
// present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFile()
	applyEnv(&cfg)
	return cfg, err
}

// LoadFile loads the configuration file over the defaults without
// environment overrides, for editing and saving back
func LoadFile() (Config, error) {
	return loadFile()
}

func loadFile() (Config, error) {
	cfg := DefaultConfig()

	configPath, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.BackendURL = v
	} else if v := strings.TrimSpace(os.Getenv(EnvViteBackendURL)); v != "" {
		cfg.BackendURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSendPolicy)); v != "" {
		cfg.SendPolicy = strings.ToLower(v)
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.json")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setters maps the keys accepted by `config set` to their field
var setters = map[string]func(*Config, string) error{
	"backend_url": func(c *Config, v string) error {
		c.BackendURL = strings.TrimRight(v, "/")
		return nil
	},
	"timeout_seconds": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("timeout_seconds must be an integer: %w", err)
		}
		c.TimeoutSeconds = n
		return nil
	},
	"send_policy": func(c *Config, v string) error {
		c.SendPolicy = strings.ToLower(v)
		return nil
	},
	"speech.recognizer_command": func(c *Config, v string) error {
		c.Speech.RecognizerCommand = v
		return nil
	},
	"speech.recognition_lang": func(c *Config, v string) error {
		c.Speech.RecognitionLang = v
		return nil
	},
	"speech.synthesizer_command": func(c *Config, v string) error {
		c.Speech.SynthesizerCommand = v
		return nil
	},
	"speech.preferred_voice_lang": func(c *Config, v string) error {
		c.Speech.PreferredVoiceLang = v
		return nil
	},
	"copy_to_clipboard": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("copy_to_clipboard must be a boolean: %w", err)
		}
		c.CopyToClipboard = b
		return nil
	},
	"markdown_style": func(c *Config, v string) error {
		c.MarkdownStyle = v
		return nil
	},
	"verbose": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("verbose must be a boolean: %w", err)
		}
		c.Verbose = b
		return nil
	},
}

// Set updates a single key of cfg and validates the result
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}

	next := *c
	if err := set(&next, strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Keys returns the keys accepted by Set, sorted
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
