// Package logging wraps log/slog with the handful of structured log
// helpers the engine, pipeline and collection facade call by name, rather
// than each package formatting its own key-value pairs inline.
package logging

import (
	"log/slog"
	"os"
)

// Logger wraps *slog.Logger with slotkv-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewText builds a Logger writing human-readable text to stderr at level.
func NewText(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewJSON builds a Logger writing JSON records to stderr at level.
func NewJSON(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// Noop builds a Logger that discards everything, for tests that don't care
// about log output.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// From adapts a caller-supplied *slog.Logger, falling back to slog.Default
// if it is nil.
func From(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{Logger: l}
}

// WithCollection scopes every subsequent log line to a collection name.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{Logger: l.Logger.With("collection", name)}
}

// LogMutation logs a completed add/update/remove against a key.
func (l *Logger) LogMutation(op string, key any, err error) {
	if err != nil {
		l.Error("mutation failed", "op", op, "key", key, "error", err)
		return
	}
	l.Debug("mutation applied", "op", op, "key", key)
}

// LogFlush logs a completed flush.
func (l *Logger) LogFlush(err error) {
	if err != nil {
		l.Error("flush failed", "error", err)
		return
	}
	l.Debug("flush completed")
}

// LogReclaimedPending warns that a slot was found in the Pending state on
// load -- the state a crash between the payload write and the commit flip
// leaves behind, reclaimed as free space rather than surfaced as data.
func (l *Logger) LogReclaimedPending(offset, totalLength uint32) {
	l.Warn("reclaimed pending slot found during load", "offset", offset, "total_length", totalLength)
}

// LogDecodeSoftFail reports a record that failed to deserialize during load
// and was skipped (treated as free space) rather than aborting the scan.
func (l *Logger) LogDecodeSoftFail(offset uint32, err error) {
	l.Warn("skipped slot with undecodable payload", "offset", offset, "error", err)
}

// LogPipelineCancelled reports a transform-stage task abandoning its
// encode because the pipeline was closed while the task waited for a
// parallelism slot.
func (l *Logger) LogPipelineCancelled(corrID string, err error) {
	l.Warn("pipeline: encode cancelled", "corr_id", corrID, "error", err)
}
