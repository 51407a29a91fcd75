package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresIntegration runs the catalog against a real Postgres container.
// It requires Docker and is skipped in short mode.
func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("signcap_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	c, err := Open(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to open catalog: %v", err)
	}
	defer c.Close(ctx)

	pg, ok := c.(*Postgres)
	if !ok {
		t.Fatalf("expected Postgres backend, got %T", c)
	}

	for i, outcome := range []Outcome{OutcomeAccepted, OutcomeRejected, OutcomeAccepted} {
		err := pg.Record(ctx, Attempt{SessionID: "s1", Label: "hola", Index: i, Captured: 30, Outcome: outcome})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	list, err := pg.List(ctx, Filter{Label: "hola"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Index != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	sum, err := pg.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum) != 1 || sum[0].Accepted != 2 || sum[0].Rejected != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	if err := pg.Forget(ctx, "hola"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if list, _ := pg.List(ctx, Filter{}); len(list) != 0 {
		t.Fatalf("expected empty journal after Forget, got %d", len(list))
	}
}
