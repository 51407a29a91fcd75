// Package labels loads the ordered queue of labels to record.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CommentPrefix marks a line that is ignored by the parser.
const CommentPrefix = "#"

// Spec is one label to record and how many sequences it needs.
type Spec struct {
	Name   string
	Target int
}

// DefaultNames is the built-in queue used when no label file is available.
var DefaultNames = []string{"hola", "_none", "agua"}

// ConfigLoadError reports that the label source could not be used. Load
// returns it alongside the default queue, so it is a warning, not a failure.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("label file %s: no usable labels", e.Path)
	}
	return fmt.Sprintf("label file %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// ErrEmpty is wrapped by ConfigLoadError when the source had no usable lines.
var ErrEmpty = errors.New("no usable labels")

// Defaults returns the built-in label queue with the given target.
func Defaults(target int) []Spec {
	specs := make([]Spec, len(DefaultNames))
	for i, name := range DefaultNames {
		specs[i] = Spec{Name: name, Target: target}
	}
	return specs
}

// Load reads the label file at path. If the file is missing, unreadable or
// empty, the default queue is returned together with a *ConfigLoadError.
func Load(path string, defaultTarget int) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return Defaults(defaultTarget), &ConfigLoadError{Path: path, Err: err}
	}
	defer f.Close()

	specs, err := Parse(f, defaultTarget)
	if err != nil {
		return Defaults(defaultTarget), &ConfigLoadError{Path: path, Err: err}
	}
	if len(specs) == 0 {
		return Defaults(defaultTarget), &ConfigLoadError{Path: path, Err: ErrEmpty}
	}
	return specs, nil
}

// Parse reads "name" or "name, count" lines in order. Blank lines, comments,
// unsafe names and repeated names are skipped. A missing, malformed or
// non-positive count falls back to defaultTarget.
func Parse(r io.Reader, defaultTarget int) ([]Spec, error) {
	var specs []Spec
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		spec, ok := parseLine(scanner.Text(), defaultTarget)
		if !ok {
			continue
		}
		if _, dup := seen[spec.Name]; dup {
			continue
		}
		seen[spec.Name] = struct{}{}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return specs, nil
}

func parseLine(line string, defaultTarget int) (Spec, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	if line == "" || strings.HasPrefix(line, CommentPrefix) {
		return Spec{}, false
	}

	name, countText, hasCount := strings.Cut(line, ",")
	name = NormalizeName(name)
	if !ValidName(name) {
		return Spec{}, false
	}

	target := defaultTarget
	if hasCount {
		if n, err := strconv.Atoi(strings.TrimSpace(countText)); err == nil && n > 0 {
			target = n
		}
	}
	return Spec{Name: name, Target: target}, true
}

// NormalizeName trims a label and folds it to Unicode NFC so that the same
// visible name always maps to the same directory.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidName reports whether name can be used as a single directory component.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}
