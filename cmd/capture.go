package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/signcap/internal/camera"
	"github.com/andresmejia3/signcap/internal/capture"
	"github.com/andresmejia3/signcap/internal/dataset"
	"github.com/andresmejia3/signcap/internal/labels"
	"github.com/andresmejia3/signcap/internal/logging"
	"github.com/andresmejia3/signcap/internal/sequence"
	"github.com/andresmejia3/signcap/internal/tui"
	"github.com/andresmejia3/signcap/internal/utils"
	"github.com/andresmejia3/signcap/internal/video"
	"github.com/andresmejia3/signcap/internal/worker"
)

// CaptureOptions holds the flags of the capture command.
type CaptureOptions struct {
	LabelsFile string
	Device     string
	Source     string
	Countdown  string
	Target     int
	AutoArm    bool
	Video      bool
}

var captureOpts CaptureOptions

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record keypoint sequences for every label in the queue",
	Long: `Walks the label queue in order. For each label it waits for the operator
(space to record, v to toggle video, esc to quit), then records sequences
until the label reaches its target. Interrupted runs resume at the next free
index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd.Context(), captureOpts)
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureOpts.LabelsFile, "labels", "l", "", "Label queue file (overrides paths.labels_file)")
	captureCmd.Flags().StringVarP(&captureOpts.Device, "device", "d", "", "Camera device, index or video file (overrides camera.device)")
	captureCmd.Flags().StringVar(&captureOpts.Source, "source", "", "Frame source: ffmpeg or opencv (overrides camera.source)")
	captureCmd.Flags().StringVarP(&captureOpts.Countdown, "countdown", "c", "", "Pause before each sequence, e.g. 1s (overrides capture.countdown)")
	captureCmd.Flags().IntVarP(&captureOpts.Target, "target", "t", 0, "Sequences per label when the label file gives none (overrides capture.default_target)")
	captureCmd.Flags().BoolVar(&captureOpts.AutoArm, "auto-arm", false, "Start every label without waiting for a key press")
	captureCmd.Flags().BoolVar(&captureOpts.Video, "video", false, "With --auto-arm, also record an annotated video per label")
	rootCmd.AddCommand(captureCmd)
}

func applyCaptureFlags(opts CaptureOptions) error {
	if opts.LabelsFile != "" {
		cfg.Paths.LabelsFile = opts.LabelsFile
	}
	if opts.Device != "" {
		cfg.Camera.Device = opts.Device
	}
	if opts.Source != "" {
		cfg.Camera.Source = opts.Source
	}
	if opts.Countdown != "" {
		cfg.Capture.Countdown = opts.Countdown
	}
	if opts.Target > 0 {
		cfg.Capture.DefaultTarget = opts.Target
	}
	return cfg.Validate()
}

// captureSettings collects the capture constants into one value.
func captureSettings() capture.Settings {
	return capture.Settings{
		Shape: sequence.Shape{
			Length:    cfg.Capture.SequenceLength,
			MinLength: cfg.Capture.MinLength,
			Dim:       cfg.Capture.KeypointDim,
		},
		DefaultTarget:   cfg.Capture.DefaultTarget,
		Countdown:       cfg.CountdownDuration(),
		MaxReadFailures: cfg.Capture.MaxReadFailures,
	}
}

func runCapture(parent context.Context, opts CaptureOptions) error {
	if err := applyCaptureFlags(opts); err != nil {
		return err
	}

	interactive := !opts.AutoArm && isTerminal(os.Stdin) && isTerminal(os.Stdout)
	if interactive {
		// The console owns the terminal; logs go to the log file only.
		quiet, err := logging.NewFromConfig(cfg, true)
		if err != nil {
			return err
		}
		logger = quiet
	}

	specs, err := labels.Load(cfg.Paths.LabelsFile, cfg.Capture.DefaultTarget)
	var loadErr *labels.ConfigLoadError
	if errors.As(err, &loadErr) {
		logger.Warn("label file unavailable, using default labels", "path", loadErr.Path, "error", loadErr.Err)
		fmt.Fprintf(os.Stderr, "⚠️  %v; using default labels\n", loadErr)
	} else if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	store := dataset.New(cfg.Paths.DatasetDir)

	journal, err := openCatalog(ctx)
	if err != nil {
		// The journal is an audit trail; capture goes on without it.
		logger.Warn("catalog unavailable, attempts will not be journaled", "error", err)
		journal = nil
	}

	source, err := openSource(ctx)
	if err != nil {
		closeQuietly(ctx, journal, nil, nil)
		return capture.NewDeviceError(cfg.Camera.Device, err)
	}

	fmt.Fprintln(os.Stderr, "🧠 Starting keypoint worker...")
	extractor, err := worker.NewPythonWorker(ctx, worker.Config{
		Python:       cfg.Extractor.Python,
		Script:       cfg.Extractor.Script,
		ReadTimeout:  cfg.ReadTimeout(),
		MinDetection: cfg.Extractor.MinDetection,
		MinTracking:  cfg.Extractor.MinTracking,
		Annotate:     cfg.Extractor.AnnotateLandmarks,
	})
	if err != nil {
		closeQuietly(ctx, journal, source, nil)
		return fmt.Errorf("failed to start keypoint worker: %w", err)
	}

	sessionOpts := capture.Options{
		Settings:  captureSettings(),
		Device:    cfg.Camera.Device,
		Source:    source,
		Extractor: extractor,
		Store:     store,
		Sinks:     sinkFactory(store, time.Now().Format("20060102-150405")),
		Catalog:   journal,
		Logger:    logger,
	}
	start := func(op capture.Operator, obs capture.Observer) (capture.Summary, error) {
		sessionOpts.Operator = op
		sessionOpts.Observer = obs
		s, err := capture.New(sessionOpts)
		if err != nil {
			closeQuietly(ctx, journal, source, extractor)
			return capture.Summary{}, err
		}
		return s.Run(ctx, specs)
	}

	var summary capture.Summary
	if interactive {
		summary, err = tui.Run(cfg.Camera.Device, cfg.Capture.SequenceLength, cancel, start)
	} else {
		auto := newAutoOperator(opts.Video)
		summary, err = start(auto, capture.ObserverFunc(auto.Observe))
	}

	printSummary(summary)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, dataset.ErrLocked):
		return fmt.Errorf("%w (is another capture running on %s?)", err, cfg.Paths.DatasetDir)
	default:
		utils.ShowError("Capture failed", err, extractor.Cmd)
		return err
	}
}

func openSource(ctx context.Context) (capture.FrameSource, error) {
	opts := video.SourceOptions{
		Device: cfg.Camera.Device,
		Format: cfg.Camera.Format,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
		Mirror: cfg.Camera.Mirror,
	}
	if cfg.Camera.Source == "opencv" {
		src, err := camera.Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := video.OpenFFmpeg(ctx, opts)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// sinkFactory opens one video per label per run, next to the label's sequences.
func sinkFactory(store *dataset.Store, stamp string) capture.SinkFactory {
	opts := video.SinkOptions{Codec: cfg.Video.Codec, FPS: cfg.Video.FPS}
	return func(ctx context.Context, label string) (capture.VideoSink, error) {
		path := store.VideoPath(label, stamp)
		if cfg.Camera.Source == "opencv" {
			w, err := camera.OpenWriter(ctx, path, opts)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
		s, err := video.OpenSink(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// closeQuietly releases whatever was opened before the session took ownership.
func closeQuietly(ctx context.Context, journal interface{ Close(context.Context) error }, source capture.FrameSource, extractor *worker.PythonWorker) {
	if extractor != nil {
		_ = extractor.Close()
	}
	if source != nil {
		_ = source.Close()
	}
	if journal != nil {
		_ = journal.Close(context.WithoutCancel(ctx))
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printSummary(s capture.Summary) {
	if s.SessionID == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "✅ Session %s: %d sequences saved, %d discarded\n", s.SessionID[:8], s.Accepted, s.Rejected)
	for _, label := range s.Skipped {
		fmt.Fprintf(os.Stderr, "   ⏭️  %s already complete\n", label)
	}
	for _, path := range s.Videos {
		fmt.Fprintf(os.Stderr, "   🎞️  %s\n", path)
	}
}

// autoOperator arms every label as soon as it is ready and reports progress
// on a bar instead of the console.
type autoOperator struct {
	ch    chan capture.Signal
	video bool
	bar   *progressbar.ProgressBar
}

func newAutoOperator(video bool) *autoOperator {
	return &autoOperator{ch: make(chan capture.Signal, 2), video: video}
}

func (a *autoOperator) Signals() <-chan capture.Signal { return a.ch }

func (a *autoOperator) Observe(e capture.Event) {
	switch e.Kind {
	case capture.EventPlan:
		a.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetDescription("🎬 Capturing"),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
		)
	case capture.EventLabelStart:
		if a.bar != nil {
			a.bar.Describe(fmt.Sprintf("🎬 %s", e.Label))
		}
	case capture.EventState:
		if e.State == capture.StateWaitingReady {
			if a.video {
				a.ch <- capture.SignalToggleVideo
			}
			a.ch <- capture.SignalArm
		}
	case capture.EventAccepted:
		if a.bar != nil {
			_ = a.bar.Add(1)
		}
	case capture.EventFinished:
		if a.bar != nil {
			_ = a.bar.Finish()
		}
	}
}
