package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// FieldSession carries the capture session ID.
const FieldSession = "session"

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
}

// replaceJSONAttr keeps JSON records greppable: frame payloads become byte
// counts, durations read as "1.5s", and the capture fields keep fixed keys
// at any group depth.
func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			if attr.Value.Kind() == slog.KindTime {
				return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
			}
		case slog.LevelKey:
			return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
			}
		}
	}

	switch attr.Key {
	case FieldComponent, FieldSession:
		if attr.Value.Kind() != slog.KindString {
			attr.Value = slog.StringValue(attr.Value.String())
		}
		return attr
	}

	switch attr.Value.Kind() {
	case slog.KindDuration:
		attr.Value = slog.StringValue(attr.Value.Duration().String())
	case slog.KindAny:
		if b, ok := attr.Value.Any().([]byte); ok {
			// JPEG frames must never end up in a log file.
			attr.Value = slog.StringValue(fmt.Sprintf("<%d bytes>", len(b)))
		}
	}
	return attr
}
