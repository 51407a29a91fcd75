//go:build !opencv

package camera

import (
	"context"

	"github.com/andresmejia3/signcap/internal/video"
)

// Source is unavailable without OpenCV.
type Source struct{}

func Open(context.Context, video.SourceOptions) (*Source, error) { return nil, ErrUnsupported }

func (*Source) Read(context.Context) ([]byte, error) { return nil, ErrUnsupported }
func (*Source) Close() error                         { return nil }

// Writer is unavailable without OpenCV.
type Writer struct{}

func OpenWriter(context.Context, string, video.SinkOptions) (*Writer, error) {
	return nil, ErrUnsupported
}

func (*Writer) Path() string            { return "" }
func (*Writer) WriteFrame([]byte) error { return ErrUnsupported }
func (*Writer) Close() error            { return nil }
