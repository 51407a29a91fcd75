package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// recordedAtLayout is fixed width so MAX(recorded_at) orders by time.
const recordedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite stores attempts in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the journal at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			label TEXT NOT NULL,
			seq_index INTEGER NOT NULL,
			captured INTEGER NOT NULL,
			padded INTEGER NOT NULL DEFAULT 0,
			truncated INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			video_path TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attempts_label_idx ON attempts (label);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Record appends an attempt.
func (s *SQLite) Record(ctx context.Context, a Attempt) error {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (session_id, label, seq_index, captured, padded, truncated, outcome, video_path, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.SessionID, a.Label, a.Index, a.Captured, a.Padded, a.Truncated, string(a.Outcome), a.VideoPath,
		a.RecordedAt.UTC().Format(recordedAtLayout))
	return err
}

// List returns attempts, newest first.
func (s *SQLite) List(ctx context.Context, f Filter) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if f.Label != "" {
		where = append(where, "label = ?")
		args = append(args, f.Label)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	query := `SELECT id, session_id, label, seq_index, captured, padded, truncated, outcome, video_path, recorded_at FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			outcome string
			ts      string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Label, &a.Index, &a.Captured, &a.Padded, &a.Truncated, &outcome, &a.VideoPath, &ts); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Outcome = Outcome(outcome)
		a.RecordedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary aggregates attempts per label.
func (s *SQLite) Summary(ctx context.Context) ([]LabelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label,
			SUM(CASE WHEN outcome = 'accepted' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END),
			MAX(recorded_at)
		FROM attempts
		GROUP BY label
		ORDER BY label
	`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []LabelSummary
	for rows.Next() {
		var (
			ls LabelSummary
			ts string
		)
		if err := rows.Scan(&ls.Label, &ls.Accepted, &ls.Rejected, &ls.Cancelled, &ts); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		ls.LastAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ls)
	}
	return out, rows.Err()
}

// Forget deletes the attempts for label, or every attempt when label is empty.
func (s *SQLite) Forget(ctx context.Context, label string) error {
	if label == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM attempts`)
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE label = ?`, label)
	return err
}

// Close closes the database.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}
