// Package logging builds the slog loggers used across signcap.
//
// Two formats are supported: a compact console format meant for humans and a
// JSON format for files and scripts. While the operator console owns the
// terminal, callers route logs to a file only.
package logging
