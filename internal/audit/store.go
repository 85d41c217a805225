package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roschler/livepeer-image-helper-back-end/internal/db"
)

// timestampFormat is RFC 3339 in UTC with a fixed nine-digit fraction, so
// stored timestamps sort lexically in time order.
const timestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string { return t.UTC().Format(timestampFormat) }

// Store provides CRUD operations for audit entries.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new audit entry. If entry.ID is empty a UUID is generated;
// a zero Timestamp means now.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Changes == nil {
		entry.Changes = []string{}
	}

	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshalling changes: %w", err)
	}

	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turn_audit (
			id, timestamp, user_id, assistant_kind, mode, status,
			user_input, error, changes, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		formatTimestamp(entry.Timestamp),
		entry.UserID,
		entry.AssistantKind,
		entry.Mode,
		string(entry.Status),
		entry.UserInput,
		errText,
		string(changes),
		entry.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, timestamp, user_id, assistant_kind, mode, status, user_input, error, changes, duration_ms FROM turn_audit"

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	return scanInto(row)
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	UserID        string
	AssistantKind string
	Mode          string
	Status        Status
	Since         *time.Time
	Until         *time.Time
	Limit         int
	Offset        int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.AssistantKind != "" {
		clauses = append(clauses, "assistant_kind = ?")
		args = append(args, filter.AssistantKind)
	}
	if filter.Mode != "" {
		clauses = append(clauses, "mode = ?")
		args = append(args, filter.Mode)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, formatTimestamp(*filter.Since))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, formatTimestamp(*filter.Until))
	}

	query := selectColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes all audit entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM turn_audit WHERE timestamp < ?",
		formatTimestamp(before),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old audit entries: %w", err)
	}
	return res.RowsAffected()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Entry, error) {
	var (
		e           Entry
		status, ts  string
		changesJSON string
		errText     sql.NullString
	)

	err := sc.Scan(
		&e.ID, &ts, &e.UserID, &e.AssistantKind, &e.Mode, &status,
		&e.UserInput, &errText, &changesJSON, &e.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	e.Status = Status(status)
	if errText.Valid {
		e.Error = errText.String
	}

	if t, parseErr := time.Parse(time.RFC3339Nano, ts); parseErr == nil {
		e.Timestamp = t
	} else if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
		e.Timestamp = t
	}

	if err := json.Unmarshal([]byte(changesJSON), &e.Changes); err != nil {
		e.Changes = nil
	}

	return &e, nil
}
