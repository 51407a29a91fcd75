// Package camera reads frames from a local camera and writes annotated video
// through OpenCV. It is only functional when built with the opencv tag
// (go build -tags opencv); otherwise Open and OpenWriter return ErrUnsupported
// and callers fall back to the ffmpeg implementations in package video.
package camera

import "errors"

// ErrUnsupported is returned when the binary was built without OpenCV.
var ErrUnsupported = errors.New("signcap was built without opencv support (rebuild with -tags opencv)")
