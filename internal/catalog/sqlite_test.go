package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteRecordListSummary(t *testing.T) {
	ctx := context.Background()
	c, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "catalog.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer c.Close(ctx)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attempts := []Attempt{
		{SessionID: "s1", Label: "hola", Index: 0, Captured: 35, Outcome: OutcomeAccepted, RecordedAt: base},
		{SessionID: "s1", Label: "hola", Index: 1, Captured: 3, Outcome: OutcomeRejected, RecordedAt: base.Add(time.Second)},
		{SessionID: "s1", Label: "hola", Index: 1, Captured: 20, Padded: 15, Outcome: OutcomeAccepted, RecordedAt: base.Add(2 * time.Second)},
		{SessionID: "s2", Label: "agua", Index: 0, Captured: 0, Outcome: OutcomeCancelled, RecordedAt: base.Add(3 * time.Second)},
	}
	for _, a := range attempts {
		if err := c.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	all, err := c.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(all))
	}
	if all[0].Label != "agua" || all[0].Outcome != OutcomeCancelled {
		t.Errorf("expected newest first, got %+v", all[0])
	}
	if !all[1].RecordedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("timestamp round trip failed: %v", all[1].RecordedAt)
	}
	if all[1].Padded != 15 {
		t.Errorf("padded = %d, want 15", all[1].Padded)
	}

	hola, err := c.List(ctx, Filter{Label: "hola", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(hola) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(hola))
	}

	sum, err := c.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum) != 2 {
		t.Fatalf("expected 2 labels, got %+v", sum)
	}
	if sum[1].Label != "hola" || sum[1].Accepted != 2 || sum[1].Rejected != 1 {
		t.Errorf("unexpected hola summary %+v", sum[1])
	}
	if sum[0].Label != "agua" || sum[0].Cancelled != 1 {
		t.Errorf("unexpected agua summary %+v", sum[0])
	}
}

func TestSQLiteForget(t *testing.T) {
	ctx := context.Background()
	c, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)

	for _, label := range []string{"hola", "agua", "hola"} {
		if err := c.Record(ctx, Attempt{SessionID: "s", Label: label, Outcome: OutcomeAccepted, RecordedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Forget(ctx, "hola"); err != nil {
		t.Fatal(err)
	}
	left, _ := c.List(ctx, Filter{})
	if len(left) != 1 || left[0].Label != "agua" {
		t.Fatalf("expected only agua left, got %+v", left)
	}
	if err := c.Forget(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if left, _ := c.List(ctx, Filter{}); len(left) != 0 {
		t.Fatalf("expected empty journal, got %+v", left)
	}
}

func TestOpenDispatchesOnScheme(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, filepath.Join(t.TempDir(), "c.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)
	if _, ok := c.(*SQLite); !ok {
		t.Fatalf("expected SQLite backend, got %T", c)
	}
}

func TestSQLiteSummaryLastAtOrdersSubsecond(t *testing.T) {
	ctx := context.Background()
	c, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)

	whole := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	later := whole.Add(100 * time.Millisecond)
	for _, at := range []time.Time{later, whole} {
		if err := c.Record(ctx, Attempt{SessionID: "s", Label: "hola", Outcome: OutcomeAccepted, RecordedAt: at}); err != nil {
			t.Fatal(err)
		}
	}

	sum, err := c.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum) != 1 || !sum[0].LastAt.Equal(later) {
		t.Fatalf("LastAt = %+v, want %v", sum, later)
	}
	all, err := c.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if !all[0].RecordedAt.Equal(whole) || !all[1].RecordedAt.Equal(later) {
		t.Errorf("timestamps did not round trip: %v, %v", all[0].RecordedAt, all[1].RecordedAt)
	}
}
