package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/systmms/pterokeys/internal/audit"
)

// LogStore keeps audit entries in the log table. It satisfies audit.Sink.
type LogStore struct {
	db *DB
}

// NewLogStore creates a LogStore.
func NewLogStore(db *DB) *LogStore {
	return &LogStore{db: db}
}

// Append inserts entry.
func (s *LogStore) Append(ctx context.Context, entry audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal log details: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx,
		s.db.rebind(`INSERT INTO log (id, action_id, user_id, user_email, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.Action, entry.ActorID, entry.ActorEmail, string(details), entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (s *LogStore) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Action != "" {
		where = append(where, "UPPER(action_id) = ?")
		args = append(args, strings.ToUpper(filter.Action))
	}
	if filter.ActorID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.ActorID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.Until.UTC())
	}

	query := `SELECT id, action_id, user_id, user_email, details, created_at FROM log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			entry   audit.Entry
			details string
			created time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.ActorID, &entry.ActorEmail, &details, &created); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
				return nil, fmt.Errorf("decode log details for %s: %w", entry.ID, err)
			}
		}
		entry.Timestamp = created.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}

	return entries, nil
}
