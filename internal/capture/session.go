package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andresmejia3/signcap/internal/catalog"
	"github.com/andresmejia3/signcap/internal/labels"
	"github.com/andresmejia3/signcap/internal/logging"
	"github.com/andresmejia3/signcap/internal/sequence"
	"github.com/andresmejia3/signcap/internal/worker"
)

// DefaultMaxReadFailures is used when Settings.MaxReadFailures is not set.
const DefaultMaxReadFailures = 30

// Options wires a Session to its collaborators. Source, Extractor and Store
// are required.
type Options struct {
	Settings  Settings
	Device    string
	Source    FrameSource
	Extractor Extractor
	Store     Store
	// Sinks opens per-label video output. Nil disables video.
	Sinks   SinkFactory
	Catalog catalog.Catalog
	// Operator arms each label. Nil arms automatically.
	Operator Operator
	Observer Observer
	Logger   *slog.Logger
}

// Summary is what a run produced.
type Summary struct {
	SessionID string
	Accepted  int
	Rejected  int
	Skipped   []string
	Videos    []string
}

type locker interface {
	Lock() error
	Unlock() error
}

// labelRun is the per-label state. It lives only for one label.
type labelRun struct {
	plan  LabelPlan
	state State
	next  int
	video bool
}

func (l *labelRun) label() string { return l.plan.Spec.Name }

func (l *labelRun) remaining() int { return max(l.plan.Spec.Target-l.next, 0) }

// Session records sequences for a queue of labels. It runs on a single
// goroutine; the operator and the observer talk to it through channels and
// callbacks.
type Session struct {
	id        string
	settings  Settings
	device    string
	source    FrameSource
	extractor Extractor
	store     Store
	sinks     SinkFactory
	catalog   catalog.Catalog
	operator  Operator
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	sink       VideoSink
	sinkFrames int
	failures   int
	summary    Summary
	once       sync.Once
}

// New validates opts and returns a session with a fresh ID.
func New(opts Options) (*Session, error) {
	if err := opts.Settings.Shape.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil || opts.Extractor == nil || opts.Store == nil {
		return nil, errors.New("capture session needs a frame source, an extractor and a store")
	}

	s := &Session{
		id:        uuid.NewString(),
		settings:  opts.Settings,
		device:    opts.Device,
		source:    opts.Source,
		extractor: opts.Extractor,
		store:     opts.Store,
		sinks:     opts.Sinks,
		catalog:   opts.Catalog,
		operator:  opts.Operator,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if s.settings.MaxReadFailures <= 0 {
		s.settings.MaxReadFailures = DefaultMaxReadFailures
	}
	if s.catalog == nil {
		s.catalog = catalog.Nop{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.With(logging.FieldComponent, "capture", logging.FieldSession, s.id)
	s.summary.SessionID = s.id
	return s, nil
}

// ID returns the session identifier recorded in the catalog.
func (s *Session) ID() string { return s.id }

// Run records every label in specs in order. It owns the session's
// resources: the source, the extractor, any open video sink, the dataset
// lock and the catalog are released before it returns, whatever the outcome.
// A cancelled ctx yields ErrCancelled; sequences accepted before the
// cancellation stay on disk.
func (s *Session) Run(ctx context.Context, specs []labels.Spec) (Summary, error) {
	defer s.teardown()

	if l, ok := s.store.(locker); ok {
		if err := l.Lock(); err != nil {
			return s.summary, err
		}
		defer func() {
			if err := l.Unlock(); err != nil {
				s.logger.Warn("dataset unlock failed", "error", err)
			}
		}()
	}

	plans, err := Plan(s.store, specs)
	if err != nil {
		return s.summary, err
	}
	total := TotalRemaining(plans)
	s.logger.Info("capture session started", "labels", len(plans), "sequences", total)
	s.observer.Observe(Event{Kind: EventPlan, Total: total})

	for _, plan := range plans {
		if plan.Skip() {
			s.logger.Info("label complete, skipping", "label", plan.Spec.Name, "existing", plan.Existing, "target", plan.Spec.Target)
			s.summary.Skipped = append(s.summary.Skipped, plan.Spec.Name)
			s.observer.Observe(Event{
				Kind:     EventLabelSkipped,
				Label:    plan.Spec.Name,
				Existing: plan.Existing,
				Target:   plan.Spec.Target,
			})
			continue
		}
		if err := s.runLabel(ctx, plan); err != nil {
			return s.summary, err
		}
	}

	s.logger.Info("capture session finished", "accepted", s.summary.Accepted, "rejected", s.summary.Rejected)
	s.observer.Observe(Event{Kind: EventFinished})
	return s.summary, nil
}

func (s *Session) runLabel(ctx context.Context, plan LabelPlan) error {
	run := &labelRun{plan: plan, next: plan.Existing}
	s.logger.Info("label started", "label", run.label(), "existing", plan.Existing, "target", plan.Spec.Target)
	s.observer.Observe(Event{
		Kind:      EventLabelStart,
		Label:     run.label(),
		Index:     run.next,
		Existing:  plan.Existing,
		Target:    plan.Spec.Target,
		Remaining: run.remaining(),
	})
	defer s.closeSink()

	if err := s.waitReady(ctx, run); err != nil {
		return s.cancelled(run, err)
	}

	for run.next < plan.Spec.Target {
		if err := s.countdown(ctx, run); err != nil {
			return s.cancelled(run, err)
		}
		s.openSink(ctx, run)
		frames, recErr := s.record(ctx, run)
		if err := s.finishSequence(ctx, run, frames, recErr); err != nil {
			return s.cancelled(run, err)
		}
	}

	s.setState(run, StateLabelDone)
	s.closeSink()
	s.logger.Info("label done", "label", run.label(), "target", plan.Spec.Target)
	s.observer.Observe(Event{Kind: EventLabelDone, Label: run.label(), Target: plan.Spec.Target})
	return nil
}

func (s *Session) cancelled(run *labelRun, err error) error {
	if errors.Is(err, ErrCancelled) {
		s.setState(run, StateCancelled)
		s.logger.Info("capture cancelled", "label", run.label(), "index", run.next)
	}
	return err
}

// waitReady shows preview frames until the operator arms the label.
func (s *Session) waitReady(ctx context.Context, run *labelRun) error {
	s.setState(run, StateWaitingReady)
	if s.operator == nil {
		return ctxErr(ctx)
	}
	signals := s.operator.Signals()

	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		case sig, ok := <-signals:
			if !ok {
				return ErrCancelled
			}
			switch sig {
			case SignalArm:
				return nil
			case SignalToggleVideo:
				if s.sinks == nil {
					s.logger.Debug("video toggle ignored, no video sink configured")
					continue
				}
				run.video = !run.video
				s.logger.Debug("video toggled", "label", run.label(), "video", run.video)
				s.observer.Observe(Event{Kind: EventVideoToggled, Label: run.label(), State: run.state, Video: run.video})
			}
		default:
			frame, err := s.source.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ErrCancelled
				}
				if derr := s.readFailed(run, err); derr != nil {
					return derr
				}
				continue
			}
			s.failures = 0
			s.observer.Observe(Event{Kind: EventPreview, Label: run.label(), State: run.state, Video: run.video, Frame: frame})
		}
	}
}

func (s *Session) countdown(ctx context.Context, run *labelRun) error {
	s.setState(run, StateCountdown)
	d := s.settings.Countdown
	if d <= 0 {
		return ctxErr(ctx)
	}

	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	seconds := int(math.Ceil(d.Seconds()))
	s.observer.Observe(Event{Kind: EventCountdown, Label: run.label(), Index: run.next, Seconds: seconds})
	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		case <-deadline.C:
			return nil
		case <-ticker.C:
			s.drainSignals()
			if seconds--; seconds > 0 {
				s.observer.Observe(Event{Kind: EventCountdown, Label: run.label(), Index: run.next, Seconds: seconds})
			}
		}
	}
}

// record collects up to Shape.Length keypoint frames. The returned error is
// ErrCancelled, a *FrameReadError (the loop ended early), a *DeviceError, or
// a broken extractor; the frames gathered so far are returned in every case.
func (s *Session) record(ctx context.Context, run *labelRun) ([]sequence.Frame, error) {
	s.setState(run, StateRecording)
	length := s.settings.Shape.Length
	frames := make([]sequence.Frame, 0, length)

	for tick := 0; tick < length; tick++ {
		if ctx.Err() != nil {
			return frames, ErrCancelled
		}
		s.drainSignals()

		raw, err := s.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return frames, ErrCancelled
			}
			if derr := s.readFailed(run, err); derr != nil {
				return frames, derr
			}
			return frames, &FrameReadError{Tick: tick, Err: err}
		}
		s.failures = 0

		res, err := s.extractor.Extract(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return frames, ErrCancelled
			}
			var werr *worker.Error
			if errors.As(err, &werr) {
				return frames, &FrameReadError{Tick: tick, Err: err}
			}
			return frames, fmt.Errorf("keypoint extraction: %w", err)
		}
		frames = append(frames, sequence.Frame(res.Keypoints))

		shown := res.Annotated
		if len(shown) == 0 {
			shown = raw
		}
		s.writeVideo(run, shown)
		s.observer.Observe(Event{
			Kind:  EventFrame,
			Label: run.label(),
			State: run.state,
			Index: run.next,
			Tick:  tick + 1,
			Video: s.sink != nil,
			Frame: shown,
		})
	}
	return frames, nil
}

// finishSequence normalizes the buffer and either persists it under the
// current index or discards it; a rejected index is recorded again.
func (s *Session) finishSequence(ctx context.Context, run *labelRun, frames []sequence.Frame, recErr error) error {
	s.setState(run, StateSequenceDone)
	label, index := run.label(), run.next

	cancelled := errors.Is(recErr, ErrCancelled)
	var (
		readErr *FrameReadError
		devErr  *DeviceError
		fatal   error
	)
	switch {
	case recErr == nil, cancelled:
	case errors.As(recErr, &readErr):
		s.logger.Warn("recording ended early", "label", label, "index", index, "frames", len(frames), "error", recErr)
	case errors.As(recErr, &devErr):
		// The frames read before the device went away are still a sequence.
		s.logger.Warn("device lost mid-sequence", "label", label, "index", index, "frames", len(frames), "error", recErr)
		fatal = recErr
	default:
		s.discard(label, index)
		return recErr
	}

	attempt := catalog.Attempt{Label: label, Index: index, Captured: len(frames)}
	if s.sink != nil {
		attempt.VideoPath = s.sink.Path()
	}

	res, err := sequence.Normalize(frames, s.settings.Shape)
	var short *sequence.TooShortError
	switch {
	case errors.As(err, &short):
		s.discard(label, index)
		attempt.Outcome = catalog.OutcomeRejected
		if cancelled {
			attempt.Outcome = catalog.OutcomeCancelled
		}
		s.journal(ctx, attempt)
		s.summary.Rejected++
		s.logger.Info("sequence rejected", "label", label, "index", index, "captured", short.Captured, "min_length", short.MinLength)
		s.observer.Observe(Event{Kind: EventRejected, Label: label, Index: index, Remaining: run.remaining(), Err: err})
	case err != nil:
		s.discard(label, index)
		return fmt.Errorf("normalize %s/%d: %w", label, index, err)
	default:
		if err := s.store.WriteSequence(label, index, res.Sequence); err != nil {
			s.discard(label, index)
			return fmt.Errorf("persist %s/%d: %w", label, index, err)
		}
		attempt.Outcome = catalog.OutcomeAccepted
		attempt.Padded = res.Padded
		attempt.Truncated = res.Truncated
		s.journal(ctx, attempt)
		s.summary.Accepted++
		run.next++
		s.logger.Info("sequence saved", "label", label, "index", index, "captured", res.Captured, "padded", res.Padded, "truncated", res.Truncated)
		s.observer.Observe(Event{Kind: EventAccepted, Label: label, Index: index, Remaining: run.remaining(), Result: res})
	}

	if fatal != nil {
		return fatal
	}
	if cancelled {
		return ErrCancelled
	}
	return nil
}

func (s *Session) discard(label string, index int) {
	if err := s.store.RemovePartial(label, index); err != nil {
		s.logger.Warn("partial cleanup failed", "label", label, "index", index, "error", err)
	}
}

// readFailed counts consecutive failed reads. It returns a *DeviceError once
// the source is clearly gone.
func (s *Session) readFailed(run *labelRun, err error) error {
	s.failures++
	s.logger.Warn("frame read failed", "label", run.label(), "failures", s.failures, "error", err)
	s.observer.Observe(Event{Kind: EventReadFailure, Label: run.label(), State: run.state, Err: err})
	if errors.Is(err, io.EOF) || s.failures >= s.settings.MaxReadFailures {
		return &DeviceError{Device: s.device, Failures: s.failures, Err: err}
	}
	return nil
}

// drainSignals drops operator input that arrives while the video toggle is
// frozen, so a stray key does not leak into the next label.
func (s *Session) drainSignals() {
	if s.operator == nil {
		return
	}
	for {
		select {
		case sig, ok := <-s.operator.Signals():
			if !ok {
				return
			}
			s.logger.Debug("operator signal ignored while recording", "signal", int(sig))
		default:
			return
		}
	}
}

func (s *Session) openSink(ctx context.Context, run *labelRun) {
	if !run.video || s.sink != nil || s.sinks == nil {
		return
	}
	sink, err := s.sinks(ctx, run.label())
	if err != nil {
		s.logger.Warn("video disabled for label", "label", run.label(), "error", err)
		run.video = false
		return
	}
	s.sink = sink
	s.logger.Info("recording video", "label", run.label(), "path", sink.Path())
}

func (s *Session) writeVideo(run *labelRun, frame []byte) {
	if s.sink == nil {
		return
	}
	if err := s.sink.WriteFrame(frame); err != nil {
		s.logger.Warn("video write failed, disabling video", "label", run.label(), "error", err)
		s.closeSink()
		run.video = false
		return
	}
	s.sinkFrames++
}

func (s *Session) closeSink() {
	if s.sink == nil {
		return
	}
	path, frames := s.sink.Path(), s.sinkFrames
	err := s.sink.Close()
	s.sink, s.sinkFrames = nil, 0
	switch {
	case err != nil:
		s.logger.Warn("video close failed", "path", path, "error", err)
	case frames == 0:
		// No frames means no file.
		s.logger.Debug("empty video discarded", "path", path)
	default:
		s.summary.Videos = append(s.summary.Videos, path)
	}
}

func (s *Session) journal(ctx context.Context, a catalog.Attempt) {
	a.SessionID = s.id
	a.RecordedAt = s.now().UTC()
	// Journal even when the run is being cancelled.
	if err := s.catalog.Record(context.WithoutCancel(ctx), a); err != nil {
		s.logger.Warn("catalog record failed", "label", a.Label, "index", a.Index, "error", err)
	}
}

func (s *Session) setState(run *labelRun, state State) {
	run.state = state
	s.observer.Observe(Event{
		Kind:      EventState,
		Label:     run.label(),
		State:     state,
		Index:     run.next,
		Target:    run.plan.Spec.Target,
		Remaining: run.remaining(),
		Video:     run.video,
	})
}

func (s *Session) teardown() {
	s.once.Do(func() {
		s.closeSink()
		if err := s.source.Close(); err != nil {
			s.logger.Warn("frame source close failed", "error", err)
		}
		if c, ok := s.extractor.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Warn("extractor close failed", "error", err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.catalog.Close(ctx); err != nil {
			s.logger.Warn("catalog close failed", "error", err)
		}
	})
}

func ctxErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}
