package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/andresmejia3/signcap/internal/utils"
)

// SinkOptions configures the encoder.
type SinkOptions struct {
	Codec string
	FPS   int
}

// Sink accepts JPEG frames and encodes them into a single video file.
type Sink struct {
	path   string
	stdin  io.WriteCloser
	wait   func() error
	cmd    *utils.SafeCommand
	frames int

	mu     sync.Mutex
	closed bool
}

// OpenSink starts an ffmpeg encoder writing to path.
func OpenSink(ctx context.Context, path string, opts SinkOptions) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create video directory: %w", err)
	}

	// Close must be able to finalize the file after a cancelled capture.
	cmd := utils.NewSafeCommand(context.WithoutCancel(ctx), "ffmpeg", SinkArgs(path, opts)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg encoder: %w", err)
	}

	s := newSink(path, stdin, cmd.Wait)
	s.cmd = cmd
	return s, nil
}

func newSink(path string, w io.WriteCloser, wait func() error) *Sink {
	return &Sink{path: path, stdin: w, wait: wait}
}

// Path is the output file.
func (s *Sink) Path() string { return s.path }

// Frames is the number of frames written so far.
func (s *Sink) Frames() int { return s.frames }

// WriteFrame forwards one JPEG frame to the encoder.
func (s *Sink) WriteFrame(jpeg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(jpeg) == 0 {
		return errors.New("empty frame")
	}
	if _, err := s.stdin.Write(jpeg); err != nil {
		return fmt.Errorf("write frame to encoder: %w", err)
	}
	s.frames++
	return nil
}

// Close flushes the encoder and waits for the file to be finalized.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeErr := s.stdin.Close()
	if waitErr := s.wait(); waitErr != nil {
		// The console may own the terminal; ffmpeg's output travels in the error.
		if s.cmd != nil && s.cmd.Stderr.Len() > 0 {
			return fmt.Errorf("video encoder: %w: %s", waitErr, strings.TrimSpace(s.cmd.Stderr.String()))
		}
		return fmt.Errorf("video encoder: %w", waitErr)
	}
	return closeErr
}

// SinkArgs builds the encoder argument list.
func SinkArgs(path string, opts SinkOptions) []string {
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}
	codec := opts.Codec
	if codec == "" {
		codec = "libx264"
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "image2pipe", "-framerate", strconv.Itoa(fps), "-vcodec", "mjpeg", "-i", "-",
		"-c:v", codec, "-pix_fmt", "yuv420p",
		path,
	}
}
