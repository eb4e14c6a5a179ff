package engine

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the minimal structured logging surface used by the service.
// Arguments are alternating key/value pairs in the slog convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type slogLogger struct {
	inner *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to the service Logger interface.
// A nil argument adapts slog.Default().
func NewSlogLogger(inner *slog.Logger) Logger {
	if inner == nil {
		inner = slog.Default()
	}
	return slogLogger{inner: inner}
}

func (l slogLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l slogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l slogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l slogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// AuditStatus classifies an audit entry outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one service operation for the audit trail.
type AuditEntry struct {
	Operation string      `json:"operation"`
	Status    AuditStatus `json:"status"`
	EntityID  string      `json:"entity_id,omitempty"`
	Error     string      `json:"error,omitempty"`
	Duration  string      `json:"duration"`
	At        time.Time   `json:"at"`
}

// AuditRecorder receives audit entries. Implementations must tolerate
// concurrent calls.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// observe emits the metrics, audit and log records for one operation.
func (s *Service) observe(ctx context.Context, operation, entityID string, start time.Time, err error) {
	duration := time.Since(start)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	entry := AuditEntry{
		Operation: operation,
		Status:    AuditStatusSuccess,
		EntityID:  entityID,
		Duration:  duration.String(),
		At:        time.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		s.logger.Error("operation failed", "operation", operation, "entity_id", entityID, "error", err)
		return
	}
	s.audit.Record(ctx, entry)
	s.logger.Debug("operation completed", "operation", operation, "entity_id", entityID, "duration", duration)
}
