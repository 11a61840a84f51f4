// Package jobstate holds the state of one running job. The engine mutates
// it; heartbeat and progress reporting read it through Snapshot.
package jobstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/library"
)

// Info is the execution context of a job. Identity fields are set before
// the job starts and never change; everything else goes through methods.
type Info struct {
	RunnerUID       uuid.UUID
	NodeUID         uuid.UUID
	NodeName        string
	Library         flow.Reference
	LibraryPath     string
	RelativeFile    string
	IsDirectory     bool
	Fingerprinting  bool
	ConfigRevision  int
	ConfigDirectory string
	StartedAt       time.Time

	mu          sync.Mutex
	file        library.File
	workingFile string
	initialSize int64
	totalParts  int
	currentPart int
	partName    string
	percent     float64
	lastUpdate  time.Time

	canceled atomic.Bool
}

// Snapshot is the wire view of Info sent with every progress report.
type Snapshot struct {
	RunnerUID          uuid.UUID      `json:"Uid"`
	NodeUID            uuid.UUID      `json:"NodeUid"`
	NodeName           string         `json:"NodeName"`
	Library            flow.Reference `json:"Library"`
	LibraryPath        string         `json:"LibraryPath"`
	LibraryFile        library.File   `json:"LibraryFile"`
	RelativeFile       string         `json:"RelativeFile"`
	WorkingFile        string         `json:"WorkingFile"`
	IsDirectory        bool           `json:"IsDirectory"`
	Fingerprint        bool           `json:"Fingerprint"`
	InitialSize        int64          `json:"InitialSize"`
	TotalParts         int            `json:"TotalParts"`
	CurrentPart        int            `json:"CurrentPart"`
	CurrentPartName    string         `json:"CurrentPartName"`
	CurrentPartPercent float64        `json:"CurrentPartPercent"`
	StartedAt          time.Time      `json:"StartedAt"`
	LastUpdate         time.Time      `json:"LastUpdate"`
	ConfigRevision     int            `json:"ConfigRevision"`
	Canceled           bool           `json:"Aborted"`
}

// SetFile replaces the library file record.
func (i *Info) SetFile(f library.File) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.file = *f.Clone()
}

// UpdateFile mutates the library file record under the lock.
func (i *Info) UpdateFile(fn func(*library.File)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn(&i.file)
}

// File returns a copy of the library file record.
func (i *Info) File() library.File {
	i.mu.Lock()
	defer i.mu.Unlock()
	return *i.file.Clone()
}

func (i *Info) SetWorkingFile(path string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.workingFile = path
}

func (i *Info) WorkingFile() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.workingFile
}

func (i *Info) SetInitialSize(n int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.initialSize = n
}

func (i *Info) InitialSize() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initialSize
}

// SetTotalParts records the part count of the active flow.
func (i *Info) SetTotalParts(n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.totalParts = n
}

// StepChanged moves the cursor to a new step and resets its percentage.
func (i *Info) StepChanged(index int, name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.currentPart = index
	i.partName = name
	i.percent = 0
}

// CurrentStep returns the cursor position and name of the active step.
func (i *Info) CurrentStep() (int, string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.currentPart, i.partName
}

// SetPercent records the active step's completion and returns the previous
// value.
func (i *Info) SetPercent(p float64) float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	prev := i.percent
	i.percent = p
	return prev
}

// Percent returns the active step's completion.
func (i *Info) Percent() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.percent
}

// Touch stamps the last update time.
func (i *Info) Touch(t time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastUpdate = t
}

// Cancel marks the job canceled. It returns true only for the first call.
func (i *Info) Cancel() bool {
	return i.canceled.CompareAndSwap(false, true)
}

// Canceled reports whether Cancel was called.
func (i *Info) Canceled() bool {
	return i.canceled.Load()
}

// Snapshot copies the current state.
func (i *Info) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Snapshot{
		RunnerUID:          i.RunnerUID,
		NodeUID:            i.NodeUID,
		NodeName:           i.NodeName,
		Library:            i.Library,
		LibraryPath:        i.LibraryPath,
		LibraryFile:        *i.file.Clone(),
		RelativeFile:       i.RelativeFile,
		WorkingFile:        i.workingFile,
		IsDirectory:        i.IsDirectory,
		Fingerprint:        i.Fingerprinting,
		InitialSize:        i.initialSize,
		TotalParts:         i.totalParts,
		CurrentPart:        i.currentPart,
		CurrentPartName:    i.partName,
		CurrentPartPercent: i.percent,
		StartedAt:          i.StartedAt,
		LastUpdate:         i.lastUpdate,
		ConfigRevision:     i.ConfigRevision,
		Canceled:           i.canceled.Load(),
	}
}
