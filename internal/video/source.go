package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andresmejia3/signcap/internal/utils"
)

// maxFrameBytes bounds a single MJPEG frame held by the scanner.
const maxFrameBytes = 16 << 20

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("frame source closed")

// SourceOptions describes what ffmpeg should read.
type SourceOptions struct {
	// Device is a V4L2 node (/dev/videoN) or a video file.
	Device string
	Format string
	Width  int
	Height int
	FPS    int
	Mirror bool
}

// StreamSource splits an MJPEG byte stream into frames. A single pump
// goroutine keeps only the newest frame; readers that fall behind skip the
// frames they missed instead of building a queue.
type StreamSource struct {
	mu       sync.Mutex
	latest   []byte
	seq      uint64
	consumed uint64
	err      error

	notify chan struct{}
	done   chan struct{}
}

// NewStreamSource starts pumping frames from r.
func NewStreamSource(r io.Reader) *StreamSource {
	s := &StreamSource{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.pump(r)
	return s
}

func (s *StreamSource) pump(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		// The scanner reuses its buffer; the frame must outlive the next Scan.
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		s.mu.Lock()
		s.latest = frame
		s.seq++
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Read returns the newest frame not yet returned, blocking until one arrives,
// the stream ends or ctx is done.
func (s *StreamSource) Read(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if s.seq > s.consumed {
			s.consumed = s.seq
			frame := s.latest
			s.mu.Unlock()
			return frame, nil
		}
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		case <-s.done:
		}
	}
}

// Done is closed once the pump has stopped.
func (s *StreamSource) Done() <-chan struct{} { return s.done }

func (s *StreamSource) stop() {
	s.mu.Lock()
	s.err = ErrClosed
	s.mu.Unlock()
}

// FFmpegSource reads a camera or file through ffmpeg's image2pipe muxer.
type FFmpegSource struct {
	*StreamSource
	cmd    *utils.SafeCommand
	cancel context.CancelFunc
	once   sync.Once
}

// OpenFFmpeg starts ffmpeg for opts. The process is bound to ctx and stopped
// by Close.
func OpenFFmpeg(ctx context.Context, opts SourceOptions) (*FFmpegSource, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := utils.NewSafeCommand(ctx, "ffmpeg", SourceArgs(opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &FFmpegSource{
		StreamSource: NewStreamSource(stdout),
		cmd:          cmd,
		cancel:       cancel,
	}, nil
}

// Command exposes ffmpeg for error reports.
func (f *FFmpegSource) Command() *utils.SafeCommand { return f.cmd }

// Close stops ffmpeg and waits for it and the pump to exit.
func (f *FFmpegSource) Close() error {
	f.once.Do(func() {
		f.stop()
		f.cancel()
		<-f.Done()
		// Killed by our own cancel; the exit status carries no information.
		_ = f.cmd.Wait()
	})
	return nil
}

// SourceArgs builds the ffmpeg argument list. V4L2 nodes are opened with the
// requested format; anything else is treated as a file and paced in real time.
func SourceArgs(opts SourceOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if strings.HasPrefix(opts.Device, "/dev/") {
		args = append(args, "-f", "v4l2")
		if opts.Format != "" {
			args = append(args, "-input_format", opts.Format)
		}
		if opts.Width > 0 && opts.Height > 0 {
			args = append(args, "-video_size", strconv.Itoa(opts.Width)+"x"+strconv.Itoa(opts.Height))
		}
		if opts.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(opts.FPS))
		}
	} else {
		args = append(args, "-re")
	}
	args = append(args, "-i", opts.Device)

	if opts.Mirror {
		args = append(args, "-vf", "hflip")
	}
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}
