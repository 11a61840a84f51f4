package steps

import (
	"context"
	"strings"
)

// Step is an executable flow part. Execute returns the 1-based output to
// follow, 0 to end the flow, or -1 to signal failure.
type Step interface {
	Execute(ctx context.Context, args *Args) (int, error)
}

// PreExecutor is implemented by steps that validate their inputs before
// Execute. Returning false fails the step.
type PreExecutor interface {
	PreExecute(args *Args) bool
}

// Canceler is implemented by steps that can interrupt a running Execute.
type Canceler interface {
	Cancel() error
}

// Definition describes a step type.
type Definition struct {
	TypeID      string
	Description string
	Inputs      int
	Outputs     int
	New         func() Step
	Fields      []Field
}

// Field returns the binding for a property name. Exact matches win over
// case-insensitive ones.
func (d Definition) Field(name string) (Field, bool) {
	var fold *Field
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return d.Fields[i], true
		}
		if fold == nil && strings.EqualFold(d.Fields[i].Name, name) {
			fold = &d.Fields[i]
		}
	}
	if fold != nil {
		return *fold, true
	}
	return Field{}, false
}

// RunPreExecute calls PreExecute when step implements it.
func RunPreExecute(step Step, args *Args) bool {
	if p, ok := step.(PreExecutor); ok {
		return p.PreExecute(args)
	}
	return true
}

// RunCancel calls Cancel when step implements it.
func RunCancel(step Step) error {
	if c, ok := step.(Canceler); ok {
		return c.Cancel()
	}
	return nil
}
