package log

import (
	"context"
	"log/slog"
	"net/http"
)

// StructuredLogger writes the fixed-shape log lines for requests and report builds.
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger wraps logger.
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPEnd logs a finished request at a level derived from its status.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogReportServed logs a dashboard payload that was written to the client.
func (sl *StructuredLogger) LogReportServed(ctx context.Context, runID, entityID string, cells, dropped int) {
	fields := NewFields().
		WithRun(runID, entityID).
		WithOperation(OpBuild).
		WithComponent(ComponentReport)
	fields[FieldCells] = cells
	fields[FieldDropped] = dropped

	sl.logger.Logger.InfoContext(ctx, "Report served", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
