package capture

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled is returned by Run when the operator or a signal stopped the
// session. It matches context.Canceled.
var ErrCancelled = fmt.Errorf("capture cancelled: %w", context.Canceled)

// ErrDeviceUnavailable means the frame source cannot be used at all.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// DeviceError wraps the cause of an unusable device. It matches
// ErrDeviceUnavailable.
type DeviceError struct {
	Device   string
	Failures int
	Err      error
}

func (e *DeviceError) Error() string {
	if e.Failures > 0 {
		return fmt.Sprintf("capture device %s unavailable after %d failed reads: %v", e.Device, e.Failures, e.Err)
	}
	return fmt.Sprintf("capture device %s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() []error { return []error{ErrDeviceUnavailable, e.Err} }

// NewDeviceError reports a device that could not be opened.
func NewDeviceError(device string, err error) error {
	return &DeviceError{Device: device, Err: err}
}

// FrameReadError is a single failed frame. It ends the current recording
// early; the frames gathered so far are still normalized.
type FrameReadError struct {
	Tick int
	Err  error
}

func (e *FrameReadError) Error() string {
	return fmt.Sprintf("frame read failed at tick %d: %v", e.Tick, e.Err)
}

func (e *FrameReadError) Unwrap() error { return e.Err }
