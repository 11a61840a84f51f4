package logging

import (
	"context"
	"log/slog"

	"flowrunner/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldFileID is the standardized structured logging key for library file identifiers.
	FieldFileID = "file_id"
	// FieldRunnerID is the standardized structured logging key for runner instance identifiers.
	FieldRunnerID = "runner_id"
	// FieldFlow is the standardized structured logging key for the active flow name.
	FieldFlow = "flow"
	// FieldStep is the standardized structured logging key for the executing step.
	FieldStep = "step"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. hello_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a warning or error.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.FileIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFileID, id.String()))
	}
	if id, ok := services.RunnerIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunnerID, id.String()))
	}
	if name, ok := services.FlowFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFlow, name))
	}
	if step, ok := services.StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
