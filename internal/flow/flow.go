package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type distinguishes regular flows from failure handlers.
type Type int

const (
	TypeStandard Type = 0
	TypeFailure  Type = 1
)

func (t Type) String() string {
	switch t {
	case TypeFailure:
		return "Failure"
	default:
		return "Standard"
	}
}

// ErrorOutput is the reserved output index a step returns when it failed.
const ErrorOutput = -1

var (
	// ErrNoEntryStep indicates a flow without a zero-input part.
	ErrNoEntryStep = errors.New("flow has no entry step")
	// ErrMultipleEntrySteps indicates more than one zero-input part.
	ErrMultipleEntrySteps = errors.New("flow has more than one entry step")
)

// Reference points at another configuration object by UID and name.
type Reference struct {
	UID  uuid.UUID `json:"Uid"`
	Name string    `json:"Name"`
	Type string    `json:"Type,omitempty"`
}

// IsZero reports whether the reference is unset.
func (r Reference) IsZero() bool {
	return r.UID == uuid.Nil
}

func (r Reference) String() string {
	if r.Name == "" {
		return r.UID.String()
	}
	return fmt.Sprintf("%s [%s]", r.Name, r.UID)
}

// Connection routes one numbered output of a part to the input of another.
type Connection struct {
	Output    int       `json:"Output"`
	InputNode uuid.UUID `json:"InputNode"`
	Input     int       `json:"Input,omitempty"`
}

// Part is a single step instance inside a flow.
type Part struct {
	UID               uuid.UUID      `json:"Uid"`
	TypeID            string         `json:"FlowElementUid"`
	Name              string         `json:"Name"`
	Label             string         `json:"Label,omitempty"`
	Inputs            int            `json:"Inputs"`
	Outputs           int            `json:"Outputs"`
	Model             map[string]any `json:"Model,omitempty"`
	OutputConnections []Connection   `json:"OutputConnections,omitempty"`
	ErrorConnection   *Connection    `json:"ErrorConnection,omitempty"`
}

// DisplayName returns the label shown to operators for the part.
func (p Part) DisplayName() string {
	if label := strings.TrimSpace(p.Label); label != "" {
		return label
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.TypeID
}

// Target returns the connection taken for output, if any. Duplicate
// connections on one output resolve to the first.
func (p Part) Target(output int) (Connection, bool) {
	if output == ErrorOutput {
		if p.ErrorConnection != nil {
			return *p.ErrorConnection, true
		}
		return Connection{}, false
	}
	for _, conn := range p.OutputConnections {
		if conn.Output == output {
			return conn, true
		}
	}
	return Connection{}, false
}

// Flow is a named, versioned step graph.
type Flow struct {
	UID      uuid.UUID `json:"Uid"`
	Name     string    `json:"Name"`
	Enabled  bool      `json:"Enabled"`
	Type     Type      `json:"Type"`
	Default  bool      `json:"Default"`
	Revision int       `json:"Revision,omitempty"`
	Parts    []Part    `json:"Parts"`
}

// Ref returns a reference to the flow.
func (f *Flow) Ref() Reference {
	return Reference{UID: f.UID, Name: f.Name, Type: "Flow"}
}

// Entry returns the single part with zero inputs.
func (f *Flow) Entry() (*Part, error) {
	var entry *Part
	for i := range f.Parts {
		if f.Parts[i].Inputs != 0 {
			continue
		}
		if entry != nil {
			return nil, fmt.Errorf("%w: %q", ErrMultipleEntrySteps, f.Name)
		}
		entry = &f.Parts[i]
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoEntryStep, f.Name)
	}
	return entry, nil
}

// Validate checks the structural invariants required before execution.
func (f *Flow) Validate() error {
	_, err := f.Entry()
	return err
}

// Part looks up a part by UID.
func (f *Flow) Part(uid uuid.UUID) (*Part, bool) {
	for i := range f.Parts {
		if f.Parts[i].UID == uid {
			return &f.Parts[i], true
		}
	}
	return nil, false
}
