// Package dataset persists normalized sequences in the on-disk layout the
// training stage consumes:
//
//	<root>/<label>/<index>/keypoints.npy   float64, shape (length, dim)
//	<root>/<label>/<label>_<stamp>.mp4     optional recording of a run
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/andresmejia3/signcap/internal/labels"
	"github.com/andresmejia3/signcap/internal/sequence"
)

// ArtifactName is the single array file inside every sequence directory.
const ArtifactName = "keypoints.npy"

const lockName = ".signcap.lock"

// ErrLocked is returned by Lock when another process holds the dataset.
var ErrLocked = errors.New("dataset is in use by another capture")

// Store is a filesystem-backed map of (label, index) to sequence.
type Store struct {
	root string
	lock *flock.Flock
}

// New returns a store rooted at dir. The directory is created lazily.
func New(dir string) *Store {
	return &Store{
		root: dir,
		lock: flock.New(filepath.Join(dir, lockName)),
	}
}

// Root returns the dataset directory.
func (s *Store) Root() string { return s.root }

// Lock takes an exclusive advisory lock on the dataset so that two capture
// processes never write the same tree.
func (s *Store) Lock() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock dataset: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock taken by Lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// LabelDir returns the directory for a label.
func (s *Store) LabelDir(label string) string {
	return filepath.Join(s.root, label)
}

// SequenceDir returns the directory for one sequence index.
func (s *Store) SequenceDir(label string, index int) string {
	return filepath.Join(s.root, label, strconv.Itoa(index))
}

// SequencePath returns the artifact path for one sequence index.
func (s *Store) SequencePath(label string, index int) string {
	return filepath.Join(s.SequenceDir(label, index), ArtifactName)
}

// VideoPath returns the per-label recording path for a run identified by stamp.
func (s *Store) VideoPath(label, stamp string) string {
	return filepath.Join(s.root, label, fmt.Sprintf("%s_%s.mp4", label, stamp))
}

// Indices returns the sorted indices of sequences that have an artifact.
// Directories without one (an interrupted write) are not counted.
func (s *Store) Indices(label string) ([]int, error) {
	entries, err := os.ReadDir(s.LabelDir(label))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", label, err)
	}

	var indices []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		idx, err := strconv.Atoi(e.Name())
		if err != nil || idx < 0 || strconv.Itoa(idx) != e.Name() {
			continue
		}
		info, err := os.Stat(filepath.Join(s.LabelDir(label), e.Name(), ArtifactName))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// Orphans returns indices whose directory exists but holds no artifact,
// typically left by a crash between mkdir and rename.
func (s *Store) Orphans(label string) ([]int, error) {
	entries, err := os.ReadDir(s.LabelDir(label))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", label, err)
	}

	var orphans []int
	for _, e := range entries {
		idx, err := strconv.Atoi(e.Name())
		if !e.IsDir() || err != nil || idx < 0 || strconv.Itoa(idx) != e.Name() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.LabelDir(label), e.Name(), ArtifactName)); errors.Is(err, fs.ErrNotExist) {
			orphans = append(orphans, idx)
		}
	}
	sort.Ints(orphans)
	return orphans, nil
}

// CountExisting returns how many sequences are already persisted for label.
func (s *Store) CountExisting(label string) (int, error) {
	indices, err := s.Indices(label)
	return len(indices), err
}

// WriteSequence persists seq at (label, index), creating directories as
// needed. The artifact is written to a temporary file and renamed into place,
// so a crash never leaves a truncated keypoints.npy behind; an existing
// artifact is replaced.
func (s *Store) WriteSequence(label string, index int, seq sequence.Sequence) error {
	if !labels.ValidName(label) {
		return fmt.Errorf("invalid label %q", label)
	}
	if index < 0 {
		return fmt.Errorf("invalid sequence index %d", index)
	}
	if seq.Len() == 0 || seq.Dim() == 0 {
		return errors.New("refusing to write an empty sequence")
	}

	dir := s.SequenceDir(label, index)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sequence dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".keypoints-*.npy")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	m := mat.NewDense(seq.Len(), seq.Dim(), seq.Flatten())
	if err := npyio.Write(tmp, m); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode %s/%d: %w", label, index, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s/%d: %w", label, index, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s/%d: %w", label, index, err)
	}
	if err := os.Rename(tmpName, s.SequencePath(label, index)); err != nil {
		return fmt.Errorf("commit %s/%d: %w", label, index, err)
	}
	return nil
}

// ReadSequence loads the artifact at (label, index).
func (s *Store) ReadSequence(label string, index int) (sequence.Sequence, error) {
	f, err := os.Open(s.SequencePath(label, index))
	if err != nil {
		return sequence.Sequence{}, err
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return sequence.Sequence{}, fmt.Errorf("decode %s/%d: %w", label, index, err)
	}
	rows, cols := m.Dims()
	return sequence.FromFlat(m.RawMatrix().Data, rows, cols)
}

// RemovePartial deletes whatever exists for (label, index). It is safe to
// call when nothing was written.
func (s *Store) RemovePartial(label string, index int) error {
	if !labels.ValidName(label) || index < 0 {
		return fmt.Errorf("invalid sequence key %s/%d", label, index)
	}
	if err := os.RemoveAll(s.SequenceDir(label, index)); err != nil {
		return fmt.Errorf("remove partial %s/%d: %w", label, index, err)
	}
	return nil
}

// RemoveLabel deletes a label directory and everything in it.
func (s *Store) RemoveLabel(label string) error {
	if !labels.ValidName(label) {
		return fmt.Errorf("invalid label %q", label)
	}
	return os.RemoveAll(s.LabelDir(label))
}

// Labels lists label directories in sorted order, which is also the class
// index order used by the training stage.
func (s *Store) Labels() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
