package session

import (
	"context"
	"log/slog"
)

// logger is the package-wide slog handle, matching pkg/dialog/stateTX.go's
// convention of calling slog.Error/slog.Debug directly rather than
// threading a *slog.Logger through every call: the engine keeps a
// single overridable logger rather than a StructuredLogger interface
// per call site.
var logger = slog.Default()

// bgctx is the I/O thread's ambient context: nothing in the readiness
// loop is ever cancelled from outside, so every log call along that
// path shares one context.Background() instead of allocating one per
// call.
var bgctx = context.Background()

// SetLogger overrides the package logger, e.g. to attach a JSON handler
// or route through an application-wide slog.Logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func logSession(id ID) slog.Attr {
	return slog.Uint64("session_id", uint64(id))
}

func logDebug(ctx context.Context, msg string, args ...any) {
	logger.DebugContext(ctx, msg, args...)
}

func logWarn(ctx context.Context, msg string, args ...any) {
	logger.WarnContext(ctx, msg, args...)
}

func logError(ctx context.Context, msg string, args ...any) {
	logger.ErrorContext(ctx, msg, args...)
}
