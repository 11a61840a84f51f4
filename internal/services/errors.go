package services

import (
	"errors"
	"fmt"
	"strings"

	"flowrunner/internal/library"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrNodeLoad       = errors.New("step load error")
	ErrStepFailed     = errors.New("step failed")
	ErrLoopProtection = errors.New("loop protection")
	ErrCanceled       = errors.New("flow canceled")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps an execution error to the status reported for the file.
// Transient transport failures never reach here on their own; everything the
// engine surfaces is a processing failure.
func FailureStatus(err error) library.Status {
	switch {
	case err == nil:
		return library.StatusProcessed
	case errors.Is(err, ErrNotFound):
		return library.StatusFlowNotFound
	default:
		return library.StatusProcessingFailed
	}
}

// IsLoopProtection reports whether err came from a step ceiling or a
// flow-redirect cycle.
func IsLoopProtection(err error) bool {
	return errors.Is(err, ErrLoopProtection)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "runner failure"
	}
	return strings.Join(parts, ": ")
}
