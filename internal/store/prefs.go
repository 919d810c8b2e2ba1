package store

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/models"
)

type speechPref struct {
	Enabled bool `json:"enabled"`
}

// Preferences persists the speech output preference independently of
// the message log.
type Preferences struct {
	kv     KV
	logger *zap.Logger
}

// NewPreferences creates a preference adapter over kv
func NewPreferences(kv KV, logger *zap.Logger) *Preferences {
	return &Preferences{kv: kv, logger: logging.OrNop(logger)}
}

// SpeechEnabled returns the stored preference, true when absent or unreadable
func (p *Preferences) SpeechEnabled() bool {
	data, err := p.kv.Get(models.KeySpeech)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logger.Warn("preference load failed", zap.Error(apierrors.NewPersistenceError("read", models.KeySpeech, err)))
		}
		return true
	}

	var pref speechPref
	if err := json.Unmarshal(data, &pref); err != nil {
		p.logger.Warn("preference is corrupted, using default", zap.Error(err))
		return true
	}
	return pref.Enabled
}

// SetSpeechEnabled stores the preference, logging and ignoring failures
func (p *Preferences) SetSpeechEnabled(enabled bool) {
	data, _ := json.Marshal(speechPref{Enabled: enabled})
	if err := p.kv.Set(models.KeySpeech, data); err != nil {
		p.logger.Warn("preference save failed",
			zap.Bool("enabled", enabled),
			zap.Error(apierrors.NewPersistenceError("write", models.KeySpeech, err)))
	}
}
