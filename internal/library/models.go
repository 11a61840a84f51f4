package library

import (
	"time"

	"github.com/google/uuid"

	"flowrunner/internal/flow"
)

// Library is a watched root directory bound to a default flow.
type Library struct {
	UID               uuid.UUID       `json:"Uid"`
	Name              string          `json:"Name"`
	Path              string          `json:"Path"`
	Enabled           bool            `json:"Enabled"`
	Folders           bool            `json:"Folders"`
	UseFingerprinting bool            `json:"UseFingerprinting"`
	Flow              *flow.Reference `json:"Flow,omitempty"`
}

// Ref returns a reference to the library.
func (l *Library) Ref() flow.Reference {
	return flow.Reference{UID: l.UID, Name: l.Name, Type: "Library"}
}

// ExecutedStep records one step the engine ran against a file.
type ExecutedStep struct {
	StepName   string        `json:"NodeName"`
	StepTypeID string        `json:"NodeUid"`
	Output     int           `json:"Output"`
	Duration   time.Duration `json:"ProcessingTime"`
}

// File is the coordinator's record of a file inside a library.
type File struct {
	UID               uuid.UUID       `json:"Uid"`
	Name              string          `json:"Name"`
	RelativePath      string          `json:"RelativePath"`
	IsDirectory       bool            `json:"IsDirectory"`
	Status            Status          `json:"Status"`
	Library           flow.Reference  `json:"Library"`
	Flow              *flow.Reference `json:"Flow,omitempty"`
	Node              *flow.Reference `json:"Node,omitempty"`
	OriginalSize      int64           `json:"OriginalSize"`
	FinalSize         int64           `json:"FinalSize"`
	Fingerprint       string          `json:"Fingerprint,omitempty"`
	FinalFingerprint  string          `json:"FinalFingerprint,omitempty"`
	OutputPath        string          `json:"OutputPath,omitempty"`
	ProcessingStarted time.Time       `json:"ProcessingStarted"`
	ProcessingEnded   time.Time       `json:"ProcessingEnded"`
	ExecutedNodes     []ExecutedStep  `json:"ExecutedNodes,omitempty"`
	OriginalMetadata  map[string]any  `json:"OriginalMetadata,omitempty"`
	FinalMetadata     map[string]any  `json:"FinalMetadata,omitempty"`
}

// Clone returns a copy that shares no slices or maps with f.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	cp := *f
	if f.Flow != nil {
		ref := *f.Flow
		cp.Flow = &ref
	}
	if f.Node != nil {
		ref := *f.Node
		cp.Node = &ref
	}
	cp.ExecutedNodes = append([]ExecutedStep(nil), f.ExecutedNodes...)
	cp.OriginalMetadata = cloneMap(f.OriginalMetadata)
	cp.FinalMetadata = cloneMap(f.FinalMetadata)
	return &cp
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
