package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/signcap/internal/utils" // Using the SafeCommand wrapper
)

// maxPayload guards against allocating garbage lengths from a corrupted pipe.
const maxPayload = 64 << 20

// Config describes how to launch the landmark extraction worker.
type Config struct {
	Python       string
	Script       string
	ReadTimeout  time.Duration
	MinDetection float64
	MinTracking  float64
	Annotate     bool
}

// Result is one frame's landmarks plus the frame with landmarks drawn on it.
// Annotated is nil when the worker was asked not to draw.
type Result struct {
	Keypoints []float64
	Annotated []byte
}

// Error is a logic error reported by the worker for a single frame. The
// worker process is still healthy after it.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "python worker error: " + e.Message }

// ErrTimeout is returned when the worker does not answer within ReadTimeout.
var ErrTimeout = errors.New("python worker timed out")

type PythonWorker struct {
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewPythonWorker starts the extraction script. Landmark results come back on
// a side-channel pipe (FD 3) so that library chatter on stdout cannot corrupt
// the protocol.
func NewPythonWorker(ctx context.Context, cfg Config) (*PythonWorker, error) {
	args := []string{
		"-u", cfg.Script,
		"--min-detection", strconv.FormatFloat(cfg.MinDetection, 'f', -1, 64),
		"--min-tracking", strconv.FormatFloat(cfg.MinTracking, 'f', -1, 64),
	}
	if !cfg.Annotate {
		args = append(args, "--no-annotate")
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("extractor failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed
// response. Protocol: [Length uint32 BE][Data].
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, wrapReadErr(err)
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxPayload {
		return nil, fmt.Errorf("python worker sent oversized payload (%d bytes)", respLen)
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, wrapReadErr(err)
	}
	return respBody, nil
}

func wrapReadErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// Extract runs landmark extraction on one JPEG frame.
func (w *PythonWorker) Extract(ctx context.Context, jpeg []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	resp, err := w.Communicate(jpeg)
	if err != nil {
		return Result{}, err
	}
	return ParseResponse(resp)
}

// ParseResponse decodes a worker payload.
//
//	ok:    [0][dim uint32][dim x float32][imgLen uint32][img]
//	error: [1][msgLen uint32][msg]
func ParseResponse(resp []byte) (Result, error) {
	r := bufio.NewReader(bytes.NewReader(resp))

	status, err := r.ReadByte()
	if err != nil {
		return Result{}, fmt.Errorf("empty worker response: %w", err)
	}

	switch status {
	case 0:
	case 1:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return Result{}, fmt.Errorf("truncated worker error: %w", err)
		}
		if int(msgLen) > len(resp) {
			return Result{}, fmt.Errorf("worker error length %d exceeds payload", msgLen)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return Result{}, fmt.Errorf("truncated worker error: %w", err)
		}
		return Result{}, &Error{Message: string(msg)}
	default:
		return Result{}, fmt.Errorf("unknown worker status %d", status)
	}

	var dim uint32
	if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
		return Result{}, fmt.Errorf("truncated keypoint header: %w", err)
	}
	if int(dim)*4 > len(resp) {
		return Result{}, fmt.Errorf("keypoint dimension %d exceeds payload", dim)
	}
	raw := make([]float32, dim)
	if err := binary.Read(r, binary.BigEndian, raw); err != nil {
		return Result{}, fmt.Errorf("truncated keypoints: %w", err)
	}
	kp := make([]float64, dim)
	for i, v := range raw {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			v = 0
		}
		kp[i] = float64(v)
	}

	var imgLen uint32
	if err := binary.Read(r, binary.BigEndian, &imgLen); err != nil {
		return Result{}, fmt.Errorf("truncated image header: %w", err)
	}
	var img []byte
	if imgLen > 0 {
		if int(imgLen) > len(resp) {
			return Result{}, fmt.Errorf("annotated image length %d exceeds payload", imgLen)
		}
		img = make([]byte, imgLen)
		if _, err := io.ReadFull(r, img); err != nil {
			return Result{}, fmt.Errorf("truncated annotated image: %w", err)
		}
	}
	return Result{Keypoints: kp, Annotated: img}, nil
}

// Close shuts the worker down and waits for it to exit.
func (w *PythonWorker) Close() error {
	if w.Stdin != nil {
		w.Stdin.Close()
	}
	if w.DataPipe != nil {
		w.DataPipe.Close()
	}
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}
