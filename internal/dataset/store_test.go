package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/signcap/internal/sequence"
)

func makeSeq(length, dim int, base float64) sequence.Sequence {
	frames := make([]sequence.Frame, length)
	for i := range frames {
		f := make(sequence.Frame, dim)
		for j := range f {
			f[j] = base + float64(i*dim+j)
		}
		frames[i] = f
	}
	return sequence.Sequence{Frames: frames}
}

func TestWriteAndReadSequence(t *testing.T) {
	s := New(t.TempDir())
	seq := makeSeq(5, 4, 0.5)

	if err := s.WriteSequence("hola", 0, seq); err != nil {
		t.Fatalf("WriteSequence: %v", err)
	}
	got, err := s.ReadSequence("hola", 0)
	if err != nil {
		t.Fatalf("ReadSequence: %v", err)
	}
	if got.Len() != 5 || got.Dim() != 4 {
		t.Fatalf("shape = (%d, %d), want (5, 4)", got.Len(), got.Dim())
	}
	if got.Frames[4][3] != seq.Frames[4][3] {
		t.Errorf("value mismatch: %v vs %v", got.Frames[4], seq.Frames[4])
	}

	entries, err := os.ReadDir(s.SequenceDir("hola", 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != ArtifactName {
		t.Errorf("expected exactly one artifact, got %v", entries)
	}
}

func TestWriteSequenceOverwrites(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteSequence("agua", 2, makeSeq(3, 2, 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteSequence("agua", 2, makeSeq(3, 2, 100)); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadSequence("agua", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Frames[0][0] != 100 {
		t.Errorf("expected overwritten value 100, got %v", got.Frames[0][0])
	}
}

func TestCountExistingIgnoresIncompleteEntries(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	if n, err := s.CountExisting("hola"); err != nil || n != 0 {
		t.Fatalf("missing label: n=%d err=%v", n, err)
	}

	for i := 0; i < 3; i++ {
		if err := s.WriteSequence("hola", i, makeSeq(2, 2, 0)); err != nil {
			t.Fatal(err)
		}
	}
	// Directory without an artifact, a non-numeric directory and a video file.
	if err := os.MkdirAll(filepath.Join(root, "hola", "3"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "hola", "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.VideoPath("hola", "20260101-120000"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountExisting("hola")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("CountExisting = %d, want 3", n)
	}
	idx, _ := s.Indices("hola")
	if len(idx) != 3 || idx[0] != 0 || idx[2] != 2 {
		t.Errorf("Indices = %v", idx)
	}
}

func TestOrphans(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteSequence("hola", 0, makeSeq(2, 2, 0)); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{"3", "1", "notes"} {
		if err := os.MkdirAll(filepath.Join(s.LabelDir("hola"), dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Orphans("hola")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Orphans = %v, want [1 3]", got)
	}
	if none, err := s.Orphans("missing"); err != nil || none != nil {
		t.Errorf("missing label: %v, %v", none, err)
	}
}

func TestRemovePartial(t *testing.T) {
	s := New(t.TempDir())

	if err := s.RemovePartial("hola", 7); err != nil {
		t.Fatalf("RemovePartial on nothing: %v", err)
	}

	dir := s.SequenceDir("hola", 1)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".keypoints-123.npy"), []byte("half"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.RemovePartial("hola", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", dir, err)
	}
}

func TestWriteSequenceRejectsBadKeys(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WriteSequence("../up", 0, makeSeq(1, 1, 0)); err == nil {
		t.Error("expected invalid label error")
	}
	if err := s.WriteSequence("ok", -1, makeSeq(1, 1, 0)); err == nil {
		t.Error("expected invalid index error")
	}
	if err := s.WriteSequence("ok", 0, sequence.Sequence{}); err == nil {
		t.Error("expected empty sequence error")
	}
}

func TestLabelsSorted(t *testing.T) {
	s := New(t.TempDir())
	for _, l := range []string{"zeta", "_none", "agua"} {
		if err := s.WriteSequence(l, 0, makeSeq(1, 1, 0)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Lock(); err != nil {
		t.Fatal(err)
	}
	defer s.Unlock()

	got, err := s.Labels()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"_none", "agua", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Labels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Labels() = %v, want %v", got, want)
		}
	}
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	b := New(dir)

	if err := a.Lock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := b.Lock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second lock err = %v, want ErrLocked", err)
	}
	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := b.Lock(); err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = b.Unlock()
}
