package store

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/models"
)

// History persists the ordered message log under a single key.
// Load never fails and Save never reports failure to the caller: the
// in-memory log stays authoritative for the running session.
type History struct {
	kv     KV
	key    string
	logger *zap.Logger
}

// NewHistory creates a message log adapter over kv
func NewHistory(kv KV, logger *zap.Logger) *History {
	return &History{
		kv:     kv,
		key:    models.KeyMessages,
		logger: logging.OrNop(logger).With(zap.String("key", models.KeyMessages)),
	}
}

// Load returns the stored log, oldest first. Missing or malformed data
// yields an empty log; entries with an unknown role are dropped.
func (h *History) Load() []models.Message {
	data, err := h.kv.Get(h.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Warn("history load failed", zap.Error(apierrors.NewPersistenceError("read", h.key, err)))
		}
		return []models.Message{}
	}

	var stored []models.Message
	if err := json.Unmarshal(data, &stored); err != nil {
		h.logger.Warn("history is corrupted, starting empty", zap.Error(err))
		return []models.Message{}
	}

	msgs := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		role, err := models.ParseRole(string(m.Role))
		if err != nil {
			h.logger.Debug("dropping stored message", zap.Error(err))
			continue
		}
		m.Role = role
		msgs = append(msgs, m)
	}
	return msgs
}

// Save replaces the stored log with msgs
func (h *History) Save(msgs []models.Message) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		h.logger.Warn("history encode failed", zap.Error(err))
		return
	}
	if err := h.kv.Set(h.key, data); err != nil {
		h.logger.Warn("history save failed",
			zap.Int("messages", len(msgs)),
			zap.Error(apierrors.NewPersistenceError("write", h.key, err)))
	}
}

// Clear removes the stored log
func (h *History) Clear() {
	if err := h.kv.Delete(h.key); err != nil {
		h.logger.Warn("history clear failed", zap.Error(apierrors.NewPersistenceError("delete", h.key, err)))
	}
}
