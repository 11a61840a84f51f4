package testsupport

import (
	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/library"
	"flowrunner/internal/revision"
)

// LinearFlow builds an enabled flow with one part per type id. Output 1 of
// each part feeds the next; the first part is the entry step.
func LinearFlow(name string, typeIDs ...string) flow.Flow {
	fl := flow.Flow{UID: uuid.New(), Name: name, Enabled: true}
	for i, typeID := range typeIDs {
		part := flow.Part{UID: uuid.New(), TypeID: typeID, Name: typeID, Inputs: 1, Outputs: 1}
		if i == 0 {
			part.Inputs = 0
		}
		fl.Parts = append(fl.Parts, part)
	}
	for i := 0; i < len(fl.Parts)-1; i++ {
		fl.Parts[i].OutputConnections = []flow.Connection{{Output: 1, InputNode: fl.Parts[i+1].UID}}
	}
	return fl
}

// FailureFlow builds the default enabled failure flow.
func FailureFlow(name string, typeIDs ...string) flow.Flow {
	fl := LinearFlow(name, typeIDs...)
	fl.Type = flow.TypeFailure
	fl.Default = true
	return fl
}

// RevisionBuilder assembles a configuration snapshot for tests.
type RevisionBuilder struct {
	rev revision.Revision
}

// NewRevision starts an empty snapshot at revision 1.
func NewRevision() *RevisionBuilder {
	return &RevisionBuilder{rev: revision.Revision{
		Revision:       1,
		Variables:      map[string]string{},
		PluginSettings: map[string]string{},
	}}
}

// Flow adds flows to the snapshot.
func (b *RevisionBuilder) Flow(flows ...flow.Flow) *RevisionBuilder {
	b.rev.Flows = append(b.rev.Flows, flows...)
	return b
}

// Library adds a library rooted at path that runs fl and returns a copy of
// it. A nil fl leaves the library without a flow.
func (b *RevisionBuilder) Library(name, path string, fl *flow.Flow, opts ...func(*library.Library)) library.Library {
	lib := library.Library{UID: uuid.New(), Name: name, Path: path, Enabled: true}
	if fl != nil {
		ref := fl.Ref()
		lib.Flow = &ref
	}
	for _, opt := range opts {
		opt(&lib)
	}
	b.rev.Libraries = append(b.rev.Libraries, lib)
	return lib
}

// Variable sets a global variable.
func (b *RevisionBuilder) Variable(name, value string) *RevisionBuilder {
	b.rev.Variables[name] = value
	return b
}

// MaxNodes sets the configured step limit.
func (b *RevisionBuilder) MaxNodes(n int) *RevisionBuilder {
	b.rev.MaxNodes = n
	return b
}

// Build returns a copy of the snapshot.
func (b *RevisionBuilder) Build() *revision.Revision {
	rev := b.rev
	rev.Flows = append([]flow.Flow(nil), b.rev.Flows...)
	rev.Libraries = append([]library.Library(nil), b.rev.Libraries...)
	return &rev
}
