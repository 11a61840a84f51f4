package job_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"flowrunner/internal/config"
	"flowrunner/internal/flow"
	"flowrunner/internal/job"
	"flowrunner/internal/library"
	"flowrunner/internal/logging"
	"flowrunner/internal/node"
	"flowrunner/internal/resolver"
	"flowrunner/internal/runner"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
	"flowrunner/internal/steps/builtin"
	"flowrunner/internal/testsupport"
)

const hostname = "worker-1"

type fixture struct {
	cfg     *config.Config
	coord   *testsupport.FakeCoordinator
	builder *testsupport.RevisionBuilder
	libDir  string
	args    job.Args
	flowLog *logging.FlowLog
	timing  config.Timing
	outbox  runner.ReportStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	coord := testsupport.NewFakeCoordinator()
	coord.AddNode(node.Node{UID: uuid.New(), Name: hostname, Address: hostname, Enabled: true, SignalrURL: "flow"})
	return &fixture{
		cfg:     cfg,
		coord:   coord,
		builder: testsupport.NewRevision(),
		libDir:  filepath.Join(testsupport.BaseDir(cfg), "library"),
		args: job.Args{
			RunnerUID: uuid.New(),
			FileUID:   uuid.New(),
			ConfigDir: cfg.Paths.ConfigDir,
			TempDir:   cfg.Paths.TempDir,
			BaseURL:   "http://127.0.0.1:1",
			Hostname:  hostname,
		},
		flowLog: logging.NewFlowLog(slog.LevelDebug),
		timing:  cfg.Timing(),
	}
}

func (f *fixture) addFile(t *testing.T, lib library.Library, rel string) library.File {
	t.Helper()
	file := library.File{
		UID:          f.args.FileUID,
		Name:         filepath.Join(f.libDir, rel),
		RelativePath: rel,
		Status:       library.StatusUnprocessed,
		Library:      lib.Ref(),
	}
	f.coord.AddFile(file)
	return file
}

func (f *fixture) execute(t *testing.T) error {
	t.Helper()
	registry := steps.NewRegistry()
	if err := builtin.Register(registry, builtin.Dependencies{}); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	res := resolver.New(resolver.Options{Registry: registry, ConfigDir: f.cfg.Paths.ConfigDir, CoreVersion: "test"})
	return job.Execute(context.Background(), f.args, job.Dependencies{
		Coordinator: f.coord,
		Revision:    f.builder.Build(),
		Resolver:    res,
		FlowLog:     f.flowLog,
		Outbox:      f.outbox,
		Timing:      f.timing,
		Version:     "test",
	})
}

func statusOf(t *testing.T, coord *testsupport.FakeCoordinator, uid uuid.UUID) library.Status {
	t.Helper()
	file, ok := coord.File(uid)
	if !ok {
		t.Fatalf("file %s not stored", uid)
	}
	return file.Status
}

func TestExecuteProcessesFile(t *testing.T) {
	f := newFixture(t)
	fl := testsupport.LinearFlow("Convert", builtin.TypeInputFile, builtin.TypeLog)
	fl.Parts[1].Model = map[string]any{"Message": "processing {file.Name}"}
	f.builder.Flow(fl)
	lib := f.builder.Library("Movies", f.libDir, &fl)
	file := f.addFile(t, lib, "movie.mkv")
	testsupport.WriteFile(t, file.Name, 2048)

	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	updates := f.coord.Updates()
	if len(updates) == 0 || updates[len(updates)-1].Status != library.StatusProcessing {
		t.Fatalf("file never marked processing: %+v", updates)
	}
	marked := updates[len(updates)-1]
	if marked.ProcessingStarted.IsZero() || marked.OriginalSize != 2048 || marked.Flow == nil || marked.Flow.UID != fl.UID {
		t.Fatalf("processing record incomplete: %+v", marked)
	}
	completes := f.coord.Completions()
	if len(completes) != 1 {
		t.Fatalf("expected one completion, got %d", len(completes))
	}
	done := completes[0]
	if done.LibraryFile.Status != library.StatusProcessed || len(done.LibraryFile.ExecutedNodes) != 2 {
		t.Fatalf("unexpected completion %+v", done.LibraryFile)
	}
	if done.RunnerUID != f.args.RunnerUID || done.NodeName != hostname || done.InitialSize != 2048 {
		t.Fatalf("unexpected identity %+v", done)
	}
	if !strings.Contains(f.flowLog.String(), "processing movie.mkv") {
		t.Fatalf("log step output missing:\n%s", f.flowLog.String())
	}
	if len(f.coord.Logs()) != 1 {
		t.Fatal("full log not uploaded")
	}

	lock := flock.New(filepath.Join(f.args.TempDir, "locks", f.args.FileUID.String()+".lock"))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("file lock still held: ok=%v err=%v", ok, err)
	}
	_ = lock.Unlock()
}

func TestExecuteDirectoryLibrarySumsSize(t *testing.T) {
	f := newFixture(t)
	fl := testsupport.LinearFlow("Folders", builtin.TypeInputFile)
	f.builder.Flow(fl)
	lib := f.builder.Library("Shows", f.libDir, &fl, func(l *library.Library) { l.Folders = true })
	file := f.addFile(t, lib, "season-1")
	total := testsupport.WriteTree(t, file.Name, map[string]int64{"e01.mkv": 100, "e02.mkv": 200, "extras/x.mkv": 50})

	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	done := f.coord.Completions()
	if len(done) != 1 || done[0].InitialSize != total || !done[0].IsDirectory {
		t.Fatalf("unexpected completion %+v", done)
	}
}

func TestExecuteNothingToProcess(t *testing.T) {
	f := newFixture(t)
	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.coord.Updates()) != 0 || len(f.coord.Starts()) != 0 {
		t.Fatal("missing file should not touch the coordinator")
	}
}

func TestExecuteUnknownLibraryDeletesRecord(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, library.Library{UID: uuid.New(), Name: "Gone"}, "movie.mkv")
	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if deleted := f.coord.Deleted(); len(deleted) != 1 || deleted[0] != f.args.FileUID {
		t.Fatalf("deleted = %v", deleted)
	}
}

func TestExecuteMissingLocalFile(t *testing.T) {
	tests := []struct {
		name       string
		isServer   bool
		onServer   bool
		wantStatus library.Status
		wantDelete bool
	}{
		{name: "remote node with file on server", onServer: true, wantStatus: library.StatusMappingIssue},
		{name: "remote node without file", wantDelete: true},
		{name: "server node", isServer: true, onServer: true, wantDelete: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.args.IsServer = tt.isServer
			f.coord.AddNode(node.Node{UID: uuid.New(), Name: "internal", Address: node.InternalAddress, SignalrURL: "flow"})
			fl := testsupport.LinearFlow("Convert", builtin.TypeInputFile)
			f.builder.Flow(fl)
			lib := f.builder.Library("Movies", f.libDir, &fl)
			file := f.addFile(t, lib, "missing.mkv")
			file.ExecutedNodes = []library.ExecutedStep{{StepName: "old"}}
			f.coord.AddFile(file)
			f.coord.SetExistsOnServer(file.UID, tt.onServer)

			if err := f.execute(t); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if tt.wantDelete {
				if len(f.coord.Deleted()) != 1 {
					t.Fatal("expected record deletion")
				}
				return
			}
			stored, _ := f.coord.File(file.UID)
			if stored.Status != tt.wantStatus || len(stored.ExecutedNodes) != 0 {
				t.Fatalf("stored = %+v", stored)
			}
			if len(f.coord.Starts()) != 0 {
				t.Fatal("engine ran for a missing file")
			}
		})
	}
}

func TestExecuteFlowNotFound(t *testing.T) {
	f := newFixture(t)
	lib := f.builder.Library("Movies", f.libDir, &flow.Flow{UID: uuid.New(), Name: "Deleted"})
	file := f.addFile(t, lib, "movie.mkv")
	testsupport.WriteFile(t, file.Name, 10)

	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := statusOf(t, f.coord, file.UID); got != library.StatusFlowNotFound {
		t.Fatalf("status = %s", got)
	}
}

func TestExecuteInvalidFlowNeverStarts(t *testing.T) {
	for _, entries := range []int{0, 2} {
		f := newFixture(t)
		fl := testsupport.LinearFlow("Broken", builtin.TypeInputFile, builtin.TypeLog)
		for i := range fl.Parts {
			fl.Parts[i].Inputs = 1
		}
		for i := 0; i < entries; i++ {
			fl.Parts[i].Inputs = 0
		}
		f.builder.Flow(fl)
		lib := f.builder.Library("Movies", f.libDir, &fl)
		file := f.addFile(t, lib, "movie.mkv")
		testsupport.WriteFile(t, file.Name, 10)

		if err := f.execute(t); err != nil {
			t.Fatalf("entries=%d: Execute: %v", entries, err)
		}
		if got := statusOf(t, f.coord, file.UID); got != library.StatusProcessingFailed {
			t.Fatalf("entries=%d: status = %s", entries, got)
		}
		if len(f.coord.Starts()) != 0 {
			t.Fatalf("entries=%d: engine started", entries)
		}
	}
}

func TestExecuteAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	fl := testsupport.LinearFlow("Convert", builtin.TypeInputFile)
	f.builder.Flow(fl)
	lib := f.builder.Library("Movies", f.libDir, &fl)
	file := f.addFile(t, lib, "movie.mkv")
	testsupport.WriteFile(t, file.Name, 10)

	held := flock.New(filepath.Join(f.args.TempDir, "locks", file.UID.String()+".lock"))
	testsupport.WriteFile(t, held.Path(), 1)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if err := f.execute(t); !errors.Is(err, job.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestExecuteStartupErrors(t *testing.T) {
	t.Run("unknown node", func(t *testing.T) {
		f := newFixture(t)
		f.args.Hostname = "stranger"
		err := f.execute(t)
		if !errors.Is(err, job.ErrNodeNotFound) || !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("temp dir missing", func(t *testing.T) {
		f := newFixture(t)
		f.args.TempDir = filepath.Join(f.args.TempDir, "absent")
		if err := f.execute(t); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestExecuteFailureFlowOnStepFailure(t *testing.T) {
	f := newFixture(t)
	fl := testsupport.LinearFlow("Convert", builtin.TypeInputFile, builtin.TypeFail)
	fl.Parts[1].Label = "Give Up"
	fl.Parts[1].Model = map[string]any{"Reason": "unsupported codec"}
	failure := testsupport.FailureFlow("Cleanup", builtin.TypeLog)
	failure.Parts[0].Model = map[string]any{"Message": "failed at {FailedNode} in {FlowName}"}
	f.builder.Flow(fl, failure)
	lib := f.builder.Library("Movies", f.libDir, &fl)
	file := f.addFile(t, lib, "movie.mkv")
	testsupport.WriteFile(t, file.Name, 10)

	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	done := f.coord.Completions()
	if len(done) != 1 || done[0].LibraryFile.Status != library.StatusProcessingFailed {
		t.Fatalf("unexpected completion %+v", done)
	}
	if !strings.Contains(f.flowLog.String(), "failed at Give Up in Convert") {
		t.Fatalf("failure flow did not run:\n%s", f.flowLog.String())
	}
}

func TestExecuteStoresUndeliveredCompletion(t *testing.T) {
	f := newFixture(t)
	store := testsupport.MustOpenOutbox(t, f.cfg)
	f.outbox = store
	f.timing.CompletionRetryInterval = 10 * time.Millisecond
	f.timing.CompletionRetryWindow = 30 * time.Millisecond
	f.coord.CompleteErr = errors.New("coordinator restarting")

	fl := testsupport.LinearFlow("Convert", builtin.TypeInputFile)
	f.builder.Flow(fl)
	lib := f.builder.Library("Movies", f.libDir, &fl)
	file := f.addFile(t, lib, "movie.mkv")
	testsupport.WriteFile(t, file.Name, 64)

	if err := f.execute(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.coord.Completions()) < 2 {
		t.Fatalf("expected completion to be retried, got %d attempts", len(f.coord.Completions()))
	}
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].FileUID != file.UID || entries[0].Status != library.StatusProcessed {
		t.Fatalf("unexpected outbox contents %+v", entries)
	}
	if !strings.Contains(entries[0].Log, "Executing Flow: Convert") {
		t.Fatalf("stored log missing header:\n%s", entries[0].Log)
	}
}
