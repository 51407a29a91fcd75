// Package sequence turns a variable-length run of keypoint frames into the
// fixed-shape array that is persisted for training.
package sequence

import (
	"fmt"
)

// Frame is one tick's keypoint vector.
type Frame []float64

// Shape is the fixed output geometry of every persisted sequence.
type Shape struct {
	Length    int // frames per sequence
	MinLength int // shorter captures are rejected
	Dim       int // values per frame
}

// Validate checks that the shape is internally consistent.
func (s Shape) Validate() error {
	if s.Length < 1 {
		return fmt.Errorf("sequence length must be >= 1, got %d", s.Length)
	}
	if s.MinLength < 1 || s.MinLength > s.Length {
		return fmt.Errorf("minimum length must be between 1 and %d, got %d", s.Length, s.MinLength)
	}
	if s.Dim < 1 {
		return fmt.Errorf("frame dimension must be >= 1, got %d", s.Dim)
	}
	return nil
}

// Sequence is exactly Shape.Length frames of Shape.Dim values each.
type Sequence struct {
	Frames []Frame
}

// Len returns the number of frames.
func (s Sequence) Len() int { return len(s.Frames) }

// Dim returns the frame dimension, or 0 for an empty sequence.
func (s Sequence) Dim() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return len(s.Frames[0])
}

// Flatten returns the frames as one row-major slice.
func (s Sequence) Flatten() []float64 {
	out := make([]float64, 0, s.Len()*s.Dim())
	for _, f := range s.Frames {
		out = append(out, f...)
	}
	return out
}

// FromFlat rebuilds a sequence from a row-major slice.
func FromFlat(data []float64, rows, cols int) (Sequence, error) {
	if rows*cols != len(data) {
		return Sequence{}, fmt.Errorf("cannot reshape %d values to (%d, %d)", len(data), rows, cols)
	}
	frames := make([]Frame, rows)
	for i := range frames {
		frames[i] = append(Frame(nil), data[i*cols:(i+1)*cols]...)
	}
	return Sequence{Frames: frames}, nil
}

// TooShortError rejects a capture with fewer than MinLength frames.
type TooShortError struct {
	Captured  int
	MinLength int
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("sequence too short: captured %d frames, need at least %d", e.Captured, e.MinLength)
}

// DimensionError reports a frame whose length does not match Shape.Dim.
type DimensionError struct {
	Frame int
	Got   int
	Want  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("frame %d has dimension %d, want %d", e.Frame, e.Got, e.Want)
}

// Result is a normalized sequence plus what was done to it.
type Result struct {
	Sequence  Sequence
	Captured  int
	Padded    int
	Truncated int
}

// Normalize applies the rejection, padding and truncation rules in order:
// fewer than MinLength frames is a *TooShortError; fewer than Length frames
// gets zero frames appended at the tail; more than Length frames keeps the
// first Length. The input is never modified or aliased.
func Normalize(frames []Frame, shape Shape) (Result, error) {
	if err := shape.Validate(); err != nil {
		return Result{}, err
	}

	k := len(frames)
	if k < shape.MinLength {
		return Result{}, &TooShortError{Captured: k, MinLength: shape.MinLength}
	}

	keep := min(k, shape.Length)
	for i := 0; i < keep; i++ {
		if len(frames[i]) != shape.Dim {
			return Result{}, &DimensionError{Frame: i, Got: len(frames[i]), Want: shape.Dim}
		}
	}

	out := make([]Frame, shape.Length)
	for i := 0; i < keep; i++ {
		out[i] = append(Frame(nil), frames[i]...)
	}
	for i := keep; i < shape.Length; i++ {
		out[i] = make(Frame, shape.Dim)
	}

	return Result{
		Sequence:  Sequence{Frames: out},
		Captured:  k,
		Padded:    shape.Length - keep,
		Truncated: k - keep,
	}, nil
}
