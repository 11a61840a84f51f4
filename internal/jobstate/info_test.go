package jobstate_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
)

func TestSnapshotIsIndependentCopy(t *testing.T) {
	info := &jobstate.Info{RunnerUID: uuid.New(), NodeName: "worker-1"}
	info.SetFile(library.File{UID: uuid.New(), Name: "a.mkv", ExecutedNodes: []library.ExecutedStep{{StepName: "Input"}}})
	info.StepChanged(2, "Encode")
	info.SetPercent(40)

	snap := info.Snapshot()
	info.UpdateFile(func(f *library.File) {
		f.ExecutedNodes = append(f.ExecutedNodes, library.ExecutedStep{StepName: "Encode"})
		f.Status = library.StatusProcessed
	})
	info.StepChanged(3, "Move")

	if snap.CurrentPart != 2 || snap.CurrentPartName != "Encode" || snap.CurrentPartPercent != 40 {
		t.Fatalf("snapshot changed after mutation: %+v", snap)
	}
	if len(snap.LibraryFile.ExecutedNodes) != 1 || snap.LibraryFile.Status != library.StatusUnprocessed {
		t.Fatalf("snapshot shares file state: %+v", snap.LibraryFile)
	}
	if got := info.Snapshot(); got.CurrentPartPercent != 0 || got.CurrentPart != 3 {
		t.Fatalf("StepChanged should reset percent: %+v", got)
	}
}

func TestCancelReportsFirstCallOnly(t *testing.T) {
	info := &jobstate.Info{}
	var wg sync.WaitGroup
	var firsts int
	var mu sync.Mutex
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if info.Cancel() {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firsts != 1 || !info.Canceled() || !info.Snapshot().Canceled {
		t.Fatalf("expected single first cancel, got %d", firsts)
	}
}
