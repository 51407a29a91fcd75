//go:build opencv

package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/signcap/internal/video"
)

// Source reads JPEG-encoded frames from an OpenCV capture device or file.
type Source struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	frame  gocv.Mat
	mirror bool
	closed bool
}

// Open opens opts.Device. A numeric device is a camera index; anything else
// is passed to OpenCV as a file or URL.
func Open(_ context.Context, opts video.SourceOptions) (*Source, error) {
	var (
		c   *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(opts.Device); convErr == nil {
		c, err = gocv.VideoCaptureDevice(id)
	} else {
		c, err = gocv.VideoCaptureFile(opts.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", opts.Device, err)
	}
	if !c.IsOpened() {
		c.Close()
		return nil, fmt.Errorf("camera %q did not open", opts.Device)
	}
	if opts.Width > 0 && opts.Height > 0 {
		c.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		c.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		c.Set(gocv.VideoCaptureFPS, float64(opts.FPS))
	}
	return &Source{cap: c, frame: gocv.NewMat(), mirror: opts.Mirror}, nil
}

// Read grabs the next frame. OpenCV reads block for at most one frame period,
// so ctx is only checked before the read.
func (s *Source) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, video.ErrClosed
	}

	if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, errors.New("camera returned no frame")
	}
	// Mirror the preview so the operator sees themselves as in a mirror.
	if s.mirror {
		gocv.Flip(s.frame, &s.frame, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	return s.cap.Close()
}

// Writer encodes JPEG frames into a video file with cv::VideoWriter. The
// writer is opened lazily because the frame size is only known once the
// first frame arrives.
type Writer struct {
	path   string
	codec  string
	fps    float64
	vw     *gocv.VideoWriter
	size   image.Point
	frames int
}

// OpenWriter prepares a writer for path. codec is a FourCC such as "mp4v".
func OpenWriter(_ context.Context, path string, opts video.SinkOptions) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create video directory: %w", err)
	}
	codec := opts.Codec
	if len(codec) != 4 {
		codec = "mp4v"
	}
	fps := float64(opts.FPS)
	if fps <= 0 {
		fps = 30
	}
	return &Writer{path: path, codec: codec, fps: fps}, nil
}

// Path is the output file.
func (w *Writer) Path() string { return w.path }

// WriteFrame decodes a JPEG frame and appends it to the video.
func (w *Writer) WriteFrame(jpeg []byte) error {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return errors.New("decode frame: empty image")
	}

	if w.vw == nil {
		w.size = image.Pt(img.Cols(), img.Rows())
		w.vw, err = gocv.VideoWriterFile(w.path, w.codec, w.fps, w.size.X, w.size.Y, true)
		if err != nil {
			return fmt.Errorf("open video writer: %w", err)
		}
	}
	if img.Cols() != w.size.X || img.Rows() != w.size.Y {
		gocv.Resize(img, &img, w.size, 0, 0, gocv.InterpolationLinear)
	}
	if err := w.vw.Write(img); err != nil {
		return err
	}
	w.frames++
	return nil
}

// Close finalizes the file. A writer that never received a frame leaves no file.
func (w *Writer) Close() error {
	if w.vw == nil {
		return nil
	}
	err := w.vw.Close()
	w.vw = nil
	return err
}
