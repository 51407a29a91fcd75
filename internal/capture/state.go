// Package capture drives the interactive recording loop: it waits for the
// operator, counts down, records fixed-length runs of keypoint frames and
// hands the normalized result to the dataset store, one label at a time.
package capture

import (
	"context"
	"time"

	"github.com/andresmejia3/signcap/internal/sequence"
	"github.com/andresmejia3/signcap/internal/worker"
)

// State is a position in the per-label capture loop.
type State int

const (
	StateWaitingReady State = iota
	StateCountdown
	StateRecording
	StateSequenceDone
	StateLabelDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateWaitingReady:
		return "waiting"
	case StateCountdown:
		return "countdown"
	case StateRecording:
		return "recording"
	case StateSequenceDone:
		return "sequence-done"
	case StateLabelDone:
		return "label-done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Signal is an operator input. Cancellation is not a signal; it arrives
// through the context passed to Run.
type Signal int

const (
	SignalArm Signal = iota
	SignalToggleVideo
)

// FrameSource produces JPEG frames. Read blocks until the next frame.
type FrameSource interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Extractor turns one frame into a keypoint vector and, optionally, a copy of
// the frame with landmarks drawn on it.
type Extractor interface {
	Extract(ctx context.Context, frame []byte) (worker.Result, error)
}

// VideoSink receives annotated frames for one label.
type VideoSink interface {
	WriteFrame(frame []byte) error
	Path() string
	Close() error
}

// SinkFactory opens the video sink for label.
type SinkFactory func(ctx context.Context, label string) (VideoSink, error)

// Operator delivers operator signals. A closed channel means the operator
// went away and is treated as a cancellation.
type Operator interface {
	Signals() <-chan Signal
}

// Store is the part of the dataset the session writes to.
type Store interface {
	CountExisting(label string) (int, error)
	WriteSequence(label string, index int, seq sequence.Sequence) error
	RemovePartial(label string, index int) error
}

// Settings are the capture constants shared by every label.
type Settings struct {
	Shape           sequence.Shape
	DefaultTarget   int
	Countdown       time.Duration
	MaxReadFailures int
}

// EventKind identifies an Event.
type EventKind int

const (
	EventPlan EventKind = iota
	EventLabelStart
	EventLabelSkipped
	EventState
	EventPreview
	EventVideoToggled
	EventCountdown
	EventFrame
	EventReadFailure
	EventAccepted
	EventRejected
	EventLabelDone
	EventFinished
)

// Event is published to the Observer on every visible change.
type Event struct {
	Kind      EventKind
	Label     string
	State     State
	Index     int
	Target    int
	Existing  int
	Remaining int // sequences still to record for the label
	Total     int // sequences still to record for the whole run (EventPlan)
	Seconds   int // countdown seconds left
	Tick      int // frames recorded in the current sequence
	Video     bool
	Frame     []byte
	Result    sequence.Result
	Err       error
}

// Observer receives session events. It is called on the session goroutine
// and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
