package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/db"
)

// SQLiteStore keeps one JSON document per history in the chat_histories
// table.
type SQLiteStore struct {
	db     *db.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a Store backed by database.
func NewSQLiteStore(database *db.DB, logger *zap.Logger) *SQLiteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: database, logger: logger}
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, userID string, kind Kind) (*History, error) {
	if err := checkKey(userID, kind); err != nil {
		return nil, err
	}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM chat_histories WHERE user_id = ? AND assistant_kind = ?`,
		userID, string(kind),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return NewHistory(userID, kind), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading chat history: %w", err)
	}
	return decode([]byte(doc), userID, kind, s.logger), nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, h *History) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_histories (user_id, assistant_kind, document, volley_count, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(user_id, assistant_kind) DO UPDATE SET
			document = excluded.document,
			volley_count = excluded.volley_count,
			updated_at = excluded.updated_at`,
		h.UserID, string(h.Kind), string(data), len(h.Volleys),
	)
	if err != nil {
		return fmt.Errorf("saving chat history: %w", err)
	}
	return nil
}

// Summary is one row of the history index.
type Summary struct {
	UserID      string `json:"user_id" yaml:"user_id"`
	Kind        Kind   `json:"assistant_kind" yaml:"assistant_kind"`
	VolleyCount int    `json:"volley_count" yaml:"volley_count"`
	UpdatedAt   string `json:"updated_at" yaml:"updated_at"`
}

// List returns the stored histories, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT user_id, assistant_kind, volley_count, updated_at FROM chat_histories ORDER BY updated_at DESC, user_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing chat histories: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var kind string
		if err := rows.Scan(&sum.UserID, &kind, &sum.VolleyCount, &sum.UpdatedAt); err != nil {
			return nil, err
		}
		sum.Kind = Kind(kind)
		out = append(out, sum)
	}
	return out, rows.Err()
}
