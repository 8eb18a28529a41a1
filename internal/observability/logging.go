// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(os.Stdout, slog.LevelInfo)
}

// NewLogger returns a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// SetGlobalLogger replaces GlobalLogger. Passing nil discards all output.
func SetGlobalLogger(l *Logger) {
	if l == nil {
		l = NewLogger(io.Discard, slog.LevelError)
	}
	GlobalLogger = l
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
)

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// MutationLogger provides structured logging for optimistic mutations.
type MutationLogger struct {
	component string
}

// NewMutationLogger creates a new MutationLogger for the given component.
func NewMutationLogger(component string) *MutationLogger {
	return &MutationLogger{component: component}
}

func (l *MutationLogger) attrs(ctx context.Context, op, key string, fields map[string]any) []any {
	attrs := []any{
		slog.String("component", l.component),
		slog.String("operation", op),
		slog.String("key", key),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// LogApplied logs an optimistic delta being applied.
func (l *MutationLogger) LogApplied(ctx context.Context, op, key string, fields map[string]any) {
	GlobalLogger.DebugContext(ctx, "optimistic applied", l.attrs(ctx, op, key, fields)...)
}

// LogReconciled logs a successful server confirmation.
func (l *MutationLogger) LogReconciled(ctx context.Context, op, key string, fields map[string]any) {
	GlobalLogger.DebugContext(ctx, "mutation reconciled", l.attrs(ctx, op, key, fields)...)
}

// LogRollback logs a failed mutation whose delta was inverted.
func (l *MutationLogger) LogRollback(ctx context.Context, op, key string, err error) {
	attrs := l.attrs(ctx, op, key, nil)
	attrs = append(attrs, slog.String("error", err.Error()))
	GlobalLogger.WarnContext(ctx, "mutation rolled back", attrs...)
}

// LogDiscarded logs a response dropped because a newer request superseded it.
func (l *MutationLogger) LogDiscarded(ctx context.Context, op, key string, seq, latest uint64) {
	attrs := l.attrs(ctx, op, key, nil)
	attrs = append(attrs, slog.Uint64("seq", seq), slog.Uint64("latest", latest))
	GlobalLogger.DebugContext(ctx, "stale response discarded", attrs...)
}

// LogSessionEnded logs a response dropped because the session it was sent
// from has ended.
func (l *MutationLogger) LogSessionEnded(ctx context.Context, op, key string) {
	GlobalLogger.InfoContext(ctx, "response from ended session dropped", l.attrs(ctx, op, key, nil)...)
}

// BusLogger provides structured logging for event bus activity.
type BusLogger struct{}

// LogPublish logs a publish and how many subscribers received it.
func (BusLogger) LogPublish(kind string, delivered int) {
	GlobalLogger.Debug("event published",
		slog.String("kind", kind),
		slog.Int("delivered", delivered),
	)
}

// LogSubscription logs a subscribe or unsubscribe.
func (BusLogger) LogSubscription(kind string, id uint64, active bool) {
	GlobalLogger.Debug("event subscription",
		slog.String("kind", kind),
		slog.Uint64("subscription_id", id),
		slog.Bool("active", active),
	)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]any) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
