package services

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	fileIDKey    contextKey = "file_id"
	runnerIDKey  contextKey = "runner_id"
	flowKey      contextKey = "flow"
	stepKey      contextKey = "step"
	requestIDKey contextKey = "request_id"
)

// WithFileID annotates context with the library file identifier.
func WithFileID(ctx context.Context, id uuid.UUID) context.Context {
	if id == uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, fileIDKey, id)
}

// FileIDFromContext extracts the library file identifier if present.
func FileIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(fileIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithRunnerID annotates context with the runner instance identifier.
func WithRunnerID(ctx context.Context, id uuid.UUID) context.Context {
	if id == uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, runnerIDKey, id)
}

// RunnerIDFromContext extracts the runner identifier if present.
func RunnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(runnerIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithFlow annotates context with the active flow name.
func WithFlow(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, flowKey, name)
}

// FlowFromContext returns the flow name if present.
func FlowFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(flowKey).(string)
	return v, ok && v != ""
}

// WithStep annotates context with the executing step's display name.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stepKey).(string)
	return v, ok && v != ""
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
