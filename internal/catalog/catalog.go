// Package catalog journals every capture attempt so an operator can audit a
// dataset after the fact: what was accepted, padded, truncated or thrown away.
package catalog

import (
	"context"
	"strings"
	"time"
)

// Outcome is how a capture attempt ended.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// Attempt is one recorded sequence attempt.
type Attempt struct {
	ID         int64
	SessionID  string
	Label      string
	Index      int
	Captured   int
	Padded     int
	Truncated  int
	Outcome    Outcome
	VideoPath  string
	RecordedAt time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Label     string
	SessionID string
	Limit     int
}

// LabelSummary aggregates attempts for one label.
type LabelSummary struct {
	Label     string
	Accepted  int
	Rejected  int
	Cancelled int
	LastAt    time.Time
}

// Catalog is the journal backend.
type Catalog interface {
	Record(ctx context.Context, a Attempt) error
	List(ctx context.Context, f Filter) ([]Attempt, error)
	Summary(ctx context.Context) ([]LabelSummary, error)
	// Forget deletes the attempts for label, or all attempts when label is "".
	Forget(ctx context.Context, label string) error
	Close(ctx context.Context) error
}

// Open picks the backend: a postgres:// or postgresql:// URL selects
// PostgreSQL, anything else is treated as a SQLite file path.
func Open(ctx context.Context, target string) (Catalog, error) {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		return OpenPostgres(ctx, target)
	}
	return OpenSQLite(ctx, target)
}

// Nop discards every record. It is used when the catalog is disabled.
type Nop struct{}

func (Nop) Record(context.Context, Attempt) error           { return nil }
func (Nop) List(context.Context, Filter) ([]Attempt, error) { return nil, nil }
func (Nop) Summary(context.Context) ([]LabelSummary, error) { return nil, nil }
func (Nop) Forget(context.Context, string) error            { return nil }
func (Nop) Close(context.Context) error                     { return nil }
