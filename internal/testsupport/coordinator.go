package testsupport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
	"flowrunner/internal/node"
	"flowrunner/internal/services"
)

// FakeCoordinator is an in-memory coordinator that records every call.
// Safe for concurrent use.
type FakeCoordinator struct {
	mu       sync.Mutex
	nodes    map[string]node.Node
	files    map[uuid.UUID]library.File
	onServer map[uuid.UUID]bool

	updates   []library.File
	deleted   []uuid.UUID
	starts    []jobstate.Snapshot
	progress  []jobstate.Snapshot
	completes []jobstate.Snapshot
	logs      []string

	// CompleteErr, when set, is returned from every Complete call.
	CompleteErr error
}

// NewFakeCoordinator returns an empty coordinator.
func NewFakeCoordinator() *FakeCoordinator {
	return &FakeCoordinator{
		nodes:    make(map[string]node.Node),
		files:    make(map[uuid.UUID]library.File),
		onServer: make(map[uuid.UUID]bool),
	}
}

// AddNode registers a node under its address.
func (f *FakeCoordinator) AddNode(n node.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.Address] = n
}

// AddFile stores a library file record.
func (f *FakeCoordinator) AddFile(file library.File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.UID] = *file.Clone()
}

// SetExistsOnServer sets the answer to ExistsOnServer for uid.
func (f *FakeCoordinator) SetExistsOnServer(uid uuid.UUID, exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onServer[uid] = exists
}

func (f *FakeCoordinator) NodeByAddress(_ context.Context, address string) (*node.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[address]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake", "node by address", address, nil)
	}
	return &n, nil
}

func (f *FakeCoordinator) LibraryFile(_ context.Context, uid uuid.UUID) (*library.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[uid]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake", "library file", uid.String(), nil)
	}
	return file.Clone(), nil
}

func (f *FakeCoordinator) UpdateLibraryFile(_ context.Context, file *library.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.UID] = *file.Clone()
	f.updates = append(f.updates, *file.Clone())
	return nil
}

func (f *FakeCoordinator) DeleteLibraryFile(_ context.Context, uid uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, uid)
	f.deleted = append(f.deleted, uid)
	return nil
}

func (f *FakeCoordinator) ExistsOnServer(_ context.Context, uid uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onServer[uid], nil
}

func (f *FakeCoordinator) Start(_ context.Context, snap jobstate.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, snap)
	return nil
}

func (f *FakeCoordinator) Update(_ context.Context, snap jobstate.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, snap)
	return nil
}

func (f *FakeCoordinator) Complete(_ context.Context, snap jobstate.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, snap)
	return f.CompleteErr
}

func (f *FakeCoordinator) SaveFullLog(_ context.Context, _, _ uuid.UUID, log string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

// File returns the stored record for uid.
func (f *FakeCoordinator) File(uid uuid.UUID) (library.File, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[uid]
	return file, ok
}

// Updates returns every file record passed to UpdateLibraryFile.
func (f *FakeCoordinator) Updates() []library.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]library.File(nil), f.updates...)
}

// Deleted returns the ids passed to DeleteLibraryFile.
func (f *FakeCoordinator) Deleted() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.deleted...)
}

// Starts returns the snapshots passed to Start.
func (f *FakeCoordinator) Starts() []jobstate.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jobstate.Snapshot(nil), f.starts...)
}

// Completions returns the snapshots passed to Complete.
func (f *FakeCoordinator) Completions() []jobstate.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jobstate.Snapshot(nil), f.completes...)
}

// Logs returns the uploaded full logs.
func (f *FakeCoordinator) Logs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logs...)
}
