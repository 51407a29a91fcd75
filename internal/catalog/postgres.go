package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Postgres stores attempts in a shared PostgreSQL database.
type Postgres struct {
	conn *pgx.Conn
}

// OpenPostgres connects and ensures the schema exists (auto-migration).
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Postgres{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS capture_attempts (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			label TEXT NOT NULL,
			seq_index INT NOT NULL,
			captured INT NOT NULL,
			padded INT NOT NULL DEFAULT 0,
			truncated INT NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			video_path TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS capture_attempts_label_idx ON capture_attempts (label);
	`)
	return err
}

// Record appends an attempt.
func (p *Postgres) Record(ctx context.Context, a Attempt) error {
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now()
	}
	_, err := p.conn.Exec(ctx, `
		INSERT INTO capture_attempts (session_id, label, seq_index, captured, padded, truncated, outcome, video_path, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.SessionID, a.Label, a.Index, a.Captured, a.Padded, a.Truncated, string(a.Outcome), a.VideoPath, a.RecordedAt)
	return err
}

// List returns attempts, newest first.
func (p *Postgres) List(ctx context.Context, f Filter) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if f.Label != "" {
		args = append(args, f.Label)
		where = append(where, fmt.Sprintf("label = $%d", len(args)))
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	query := `SELECT id, session_id, label, seq_index, captured, padded, truncated, outcome, video_path, recorded_at FROM capture_attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := p.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			outcome string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Label, &a.Index, &a.Captured, &a.Padded, &a.Truncated, &outcome, &a.VideoPath, &a.RecordedAt); err != nil {
			return nil, err
		}
		a.Outcome = Outcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary aggregates attempts per label.
func (p *Postgres) Summary(ctx context.Context) ([]LabelSummary, error) {
	rows, err := p.conn.Query(ctx, `
		SELECT label,
			COUNT(*) FILTER (WHERE outcome = 'accepted'),
			COUNT(*) FILTER (WHERE outcome = 'rejected'),
			COUNT(*) FILTER (WHERE outcome = 'cancelled'),
			MAX(recorded_at)
		FROM capture_attempts
		GROUP BY label
		ORDER BY label
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelSummary
	for rows.Next() {
		var ls LabelSummary
		if err := rows.Scan(&ls.Label, &ls.Accepted, &ls.Rejected, &ls.Cancelled, &ls.LastAt); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// Forget deletes the attempts for label, or every attempt when label is empty.
func (p *Postgres) Forget(ctx context.Context, label string) error {
	if label == "" {
		_, err := p.conn.Exec(ctx, `TRUNCATE capture_attempts`)
		return err
	}
	_, err := p.conn.Exec(ctx, `DELETE FROM capture_attempts WHERE label = $1`, label)
	return err
}

// Close terminates the database connection.
func (p *Postgres) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}
