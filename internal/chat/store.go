package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Store persists whole histories keyed by user id and assistant kind.
// Load returns an empty history when nothing usable is stored. Save
// replaces the stored document.
type Store interface {
	Load(ctx context.Context, userID string, kind Kind) (*History, error)
	Save(ctx context.Context, h *History) error
}

// decode parses a stored document. Corrupt documents are logged and
// treated as an empty history so the user can start fresh.
func decode(data []byte, userID string, kind Kind, logger *zap.Logger) *History {
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		logger.Warn("discarding unreadable chat history",
			zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Error(err))
		return NewHistory(userID, kind)
	}
	h.UserID, h.Kind = userID, kind
	kept := make([]Volley, 0, len(h.Volleys))
	for i, v := range h.Volleys {
		if v.StateAfter == nil {
			logger.Warn("dropping stored volley without state_after",
				zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Int("index", i))
			continue
		}
		kept = append(kept, v)
	}
	h.Volleys = kept
	return &h
}

func checkKey(userID string, kind Kind) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	return nil
}

func encode(h *History) ([]byte, error) {
	if err := checkKey(h.UserID, h.Kind); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding chat history: %w", err)
	}
	return data, nil
}
