package cmd

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/signcap/internal/capture"
	"github.com/andresmejia3/signcap/internal/catalog"
	"github.com/andresmejia3/signcap/internal/config"
	"github.com/andresmejia3/signcap/internal/dataset"
	"github.com/andresmejia3/signcap/internal/labels"
	"github.com/andresmejia3/signcap/internal/logging"
	"github.com/andresmejia3/signcap/internal/sequence"
)

// useTestConfig points the package globals at a temporary dataset.
func useTestConfig(t *testing.T) *dataset.Store {
	t.Helper()
	c := config.Default()
	c.Paths.DatasetDir = t.TempDir()
	c.Paths.LabelsFile = filepath.Join(t.TempDir(), "missing.txt")
	c.Capture.SequenceLength = 4
	c.Capture.MinLength = 2
	c.Capture.KeypointDim = 3
	cfg = &c
	logger = logging.NewNop()
	resetYes, resetKeepJournal = false, false
	return dataset.New(c.Paths.DatasetDir)
}

func writeSeq(t *testing.T, store *dataset.Store, label string, index, length, dim int) {
	t.Helper()
	frames := make([]sequence.Frame, length)
	for i := range frames {
		frames[i] = make(sequence.Frame, dim)
	}
	if err := store.WriteSequence(label, index, sequence.Sequence{Frames: frames}); err != nil {
		t.Fatal(err)
	}
}

func TestCollectStatus(t *testing.T) {
	store := useTestConfig(t)
	writeSeq(t, store, "hola", 0, 4, 3)
	writeSeq(t, store, "hola", 1, 4, 3)
	writeSeq(t, store, "extra", 0, 4, 3)

	specs := []labels.Spec{{Name: "hola", Target: 3}, {Name: "agua", Target: 2}}
	summaries := []catalog.LabelSummary{{Label: "hola", Accepted: 2, Rejected: 1}}

	rows, err := collectStatus(store, specs, summaries)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected queue labels plus extra, got %+v", rows)
	}
	want := []labelStatus{
		{Name: "hola", Class: 1, Saved: 2, Target: 3, Accepted: 2, Rejected: 1},
		{Name: "agua", Class: -1, Saved: 0, Target: 2},
		{Name: "extra", Class: 0, Saved: 1, Target: 0},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	out := renderStatus(rows)
	for _, s := range []string{"hola", "agua", "extra", "Remaining"} {
		if !strings.Contains(out, s) {
			t.Errorf("status table missing %q:\n%s", s, out)
		}
	}
}

func TestVerifyDataset(t *testing.T) {
	store := useTestConfig(t)
	writeSeq(t, store, "hola", 0, 4, 3)
	writeSeq(t, store, "hola", 2, 4, 3) // gap at 1
	writeSeq(t, store, "agua", 0, 5, 3) // wrong length
	if err := os.MkdirAll(store.SequenceDir("agua", 1), 0o755); err != nil {
		t.Fatal(err)
	}

	problems, checked, err := verifyDataset(store, 4, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	if checked != 3 {
		t.Errorf("checked = %d, want 3", checked)
	}
	if len(problems) != 3 {
		t.Fatalf("expected gap, orphan and shape problems, got %+v", problems)
	}

	// Pruning removes the orphan and leaves the rest.
	problems, _, err = verifyDataset(store, 4, 3, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 2 {
		t.Errorf("expected 2 problems after prune, got %+v", problems)
	}
	if _, err := os.Stat(store.SequenceDir("agua", 1)); !os.IsNotExist(err) {
		t.Errorf("orphan directory should be pruned")
	}
}

func TestResetLabel(t *testing.T) {
	store := useTestConfig(t)
	writeSeq(t, store, "hola", 0, 4, 3)
	writeSeq(t, store, "agua", 0, 4, 3)

	ctx := context.Background()
	journal, err := openCatalog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range []string{"hola", "agua"} {
		if err := journal.Record(ctx, catalog.Attempt{SessionID: "s", Label: l, Outcome: catalog.OutcomeAccepted, RecordedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	journal.Close(ctx)

	var out strings.Builder
	if err := runReset(ctx, bufio.NewReader(strings.NewReader("y\n")), &out, []string{"hola"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountExisting("hola"); n != 0 {
		t.Errorf("hola should be gone, %d left", n)
	}
	if n, _ := store.CountExisting("agua"); n != 1 {
		t.Errorf("agua must be kept, got %d", n)
	}

	journal, err = openCatalog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close(ctx)
	left, _ := journal.List(ctx, catalog.Filter{})
	if len(left) != 1 || left[0].Label != "agua" {
		t.Errorf("journal should only keep agua, got %+v", left)
	}
}

func TestResetAborts(t *testing.T) {
	store := useTestConfig(t)
	writeSeq(t, store, "hola", 0, 4, 3)

	var out strings.Builder
	if err := runReset(context.Background(), bufio.NewReader(strings.NewReader("n\n")), &out, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Aborted") {
		t.Errorf("expected abort message, got %q", out.String())
	}
	if n, _ := store.CountExisting("hola"); n != 1 {
		t.Errorf("nothing should be deleted, got %d", n)
	}
}

func TestResetRejectsPathLabels(t *testing.T) {
	useTestConfig(t)
	var out strings.Builder
	if err := runReset(context.Background(), bufio.NewReader(strings.NewReader("y\n")), &out, []string{"../etc"}); err == nil {
		t.Fatal("expected invalid label error")
	}
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]catalog.Attempt{{
		SessionID:  "0123456789abcdef",
		Label:      "hola",
		Index:      3,
		Captured:   20,
		Padded:     15,
		Outcome:    catalog.OutcomeAccepted,
		RecordedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}})
	for _, s := range []string{"01234567", "hola", "accepted", "15"} {
		if !strings.Contains(out, s) {
			t.Errorf("history table missing %q:\n%s", s, out)
		}
	}
	if strings.Contains(out, "89abcdef") {
		t.Errorf("session id should be shortened:\n%s", out)
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	c := config.Default()
	datasetDir, dbURL = t.TempDir(), "postgres://u:p@db:5432/signcap"
	defer func() { datasetDir, dbURL = "", "" }()
	c.Catalog.Disabled = true

	if err := applyGlobalFlags(&c); err != nil {
		t.Fatal(err)
	}
	if c.Paths.DatasetDir != datasetDir {
		t.Errorf("dataset dir = %q, want %q", c.Paths.DatasetDir, datasetDir)
	}
	if c.Catalog.URL != dbURL || c.Catalog.Disabled {
		t.Errorf("--db should enable the postgres catalog: %+v", c.Catalog)
	}
}

func TestCaptureSettingsFromConfig(t *testing.T) {
	useTestConfig(t)
	cfg.Capture.Countdown = "2s"
	s := captureSettings()
	if s.Shape != (sequence.Shape{Length: 4, MinLength: 2, Dim: 3}) {
		t.Errorf("unexpected shape %+v", s.Shape)
	}
	if s.Countdown != 2*time.Second || s.MaxReadFailures != cfg.Capture.MaxReadFailures {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestAutoOperatorArmsEachLabel(t *testing.T) {
	a := newAutoOperator(true)
	a.Observe(capture.Event{Kind: capture.EventState, State: capture.StateWaitingReady, Label: "hola"})

	if sig := <-a.Signals(); sig != capture.SignalToggleVideo {
		t.Errorf("expected video toggle first, got %v", sig)
	}
	if sig := <-a.Signals(); sig != capture.SignalArm {
		t.Errorf("expected arm, got %v", sig)
	}

	a.Observe(capture.Event{Kind: capture.EventState, State: capture.StateRecording})
	select {
	case sig := <-a.Signals():
		t.Errorf("unexpected signal %v", sig)
	default:
	}
}
