package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"flowrunner/internal/config"
	"flowrunner/internal/fileutil"
	"flowrunner/internal/flow"
	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
	"flowrunner/internal/liveness"
	"flowrunner/internal/logging"
	"flowrunner/internal/node"
	"flowrunner/internal/preflight"
	"flowrunner/internal/resolver"
	"flowrunner/internal/revision"
	"flowrunner/internal/runner"
	"flowrunner/internal/services"
)

var (
	// ErrAlreadyRunning indicates another runner holds the file's lock.
	ErrAlreadyRunning = errors.New("library file is already being processed")
	// ErrNodeNotFound indicates the coordinator has no node for this address.
	ErrNodeNotFound = fmt.Errorf("%w: processing node not found", services.ErrConfiguration)
)

// Args identifies the job and where it runs.
type Args struct {
	RunnerUID uuid.UUID
	FileUID   uuid.UUID
	ConfigDir string
	TempDir   string
	BaseURL   string
	Hostname  string
	IsServer  bool
	Docker    bool
}

// Coordinator is the subset of the coordinator API bootstrap and the runner
// need.
type Coordinator interface {
	runner.Reporter
	NodeByAddress(ctx context.Context, address string) (*node.Node, error)
	LibraryFile(ctx context.Context, uid uuid.UUID) (*library.File, error)
	UpdateLibraryFile(ctx context.Context, f *library.File) error
	DeleteLibraryFile(ctx context.Context, uid uuid.UUID) error
	ExistsOnServer(ctx context.Context, uid uuid.UUID) (bool, error)
}

// StepResolver resolves steps and lists the bundles they come from.
type StepResolver interface {
	runner.StepResolver
	Bundles() []resolver.Bundle
}

// Dialer opens the live channel for fileUID at endpoint.
type Dialer func(ctx context.Context, endpoint string, fileUID uuid.UUID, onAbort func()) (runner.Channel, error)

// Dependencies are the collaborators Execute wires together.
type Dependencies struct {
	Coordinator Coordinator
	Revision    *revision.Revision
	Resolver    StepResolver
	Dial        Dialer
	Outbox      runner.ReportStore
	Logger      *slog.Logger
	FlowLog     *logging.FlowLog
	Timing      config.Timing
	Version     string
	Now         func() time.Time
}

// Execute runs the job for args. A nil error means the job reached an end
// state, including when there was nothing to process.
func Execute(ctx context.Context, args Args, deps Dependencies) error {
	if deps.Coordinator == nil || deps.Revision == nil || deps.Resolver == nil {
		return errors.New("job: coordinator, revision and resolver are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx = services.WithRunnerID(services.WithFileID(ctx, args.FileUID), args.RunnerUID)
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "job"))

	workingDir, err := prepareWorkingDir(args, logger)
	if err != nil {
		return err
	}

	address := node.AddressFor(args.IsServer, args.Hostname)
	logger.Info("looking up processing node", logging.String("address", address))
	nd, err := deps.Coordinator.NodeByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, address)
		}
		return services.Wrap(services.ErrTransient, "job", "node lookup", "failed to register node", err)
	}
	if nd == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, address)
	}
	endpoint, err := liveness.EndpointURL(args.BaseURL, nd.SignalrURL)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "job", "node lookup", "invalid live channel url", err)
	}
	logger.Info("processing node resolved",
		logging.String("node", nd.Name),
		logging.String("endpoint", endpoint))

	file, err := deps.Coordinator.LibraryFile(ctx, args.FileUID)
	if errors.Is(err, services.ErrNotFound) || (err == nil && file == nil) {
		logger.Info("Library file not found, must have been deleted from the library files. Nothing to process")
		return nil
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "job", "load file", "failed to load library file", err)
	}

	lib, ok := deps.Revision.LibraryByID(file.Library.UID)
	if !ok {
		logger.Info("Library was not found, deleting library file", logging.String("library", file.Library.String()))
		return deps.Coordinator.DeleteLibraryFile(ctx, file.UID)
	}

	workingFile := nd.Map(file.Name)
	if !presentLocally(workingFile, lib.Folders) {
		return settleMissingFile(ctx, deps.Coordinator, logger, args.IsServer, file, workingFile)
	}

	var fl *flow.Flow
	if lib.Flow != nil {
		fl, ok = deps.Revision.FlowByID(lib.Flow.UID)
	}
	if fl == nil || !ok || fl.UID == uuid.Nil {
		logger.Info("Flow not found, cannot process file", logging.String("file", workingFile))
		file.Status = library.StatusFlowNotFound
		return deps.Coordinator.UpdateLibraryFile(ctx, file)
	}
	if err := fl.Validate(); err != nil {
		logging.ErrorWithContext(logger, "flow cannot start", "invalid_flow",
			logging.String(logging.FieldFlow, fl.Name),
			logging.Error(services.Wrap(services.ErrConfiguration, "job", "validate flow", fl.Name, err)),
			logging.String(logging.FieldErrorHint, "give the flow exactly one input step"))
		file.Status = library.StatusProcessingFailed
		return deps.Coordinator.UpdateLibraryFile(ctx, file)
	}

	lock, err := acquireLock(args.TempDir, file.UID)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release file lock", logging.Error(err))
		}
	}()

	file.Status = library.StatusProcessing
	if ref := fl.Ref(); file.Flow == nil || file.Flow.UID != ref.UID || file.Flow.Name != ref.Name {
		file.Flow = &ref
		if err := deps.Coordinator.UpdateLibraryFile(ctx, file); err != nil {
			logger.Warn("failed to update file flow reference", logging.Error(err))
		}
	}
	file.ProcessingStarted = now()
	initialSize := measure(workingFile, lib.Folders, logger)
	file.OriginalSize = initialSize
	if err := deps.Coordinator.UpdateLibraryFile(ctx, file); err != nil {
		return services.Wrap(services.ErrTransient, "job", "mark processing", "failed to update library file", err)
	}
	logger.Info(fmt.Sprintf("Initial Size: %d", initialSize))

	info := &jobstate.Info{
		RunnerUID:       args.RunnerUID,
		NodeUID:         nd.UID,
		NodeName:        nd.Name,
		Library:         file.Library,
		LibraryPath:     lib.Path,
		RelativeFile:    file.RelativePath,
		IsDirectory:     lib.Folders,
		Fingerprinting:  lib.UseFingerprinting,
		ConfigRevision:  deps.Revision.Revision,
		ConfigDirectory: args.ConfigDir,
		StartedAt:       now(),
	}
	info.SetFile(*file)
	info.SetInitialSize(initialSize)
	info.SetTotalParts(len(fl.Parts))

	flowLog := deps.FlowLog
	if flowLog == nil {
		flowLog = logging.NewFlowLog(slog.LevelDebug)
	}
	flowCtx := services.WithFlow(ctx, fl.Name)
	flowLogger := logging.WithContext(flowCtx, logging.TeeLogger(deps.Logger, flowLog.Handler()))

	var dial runner.DialFunc
	if deps.Dial != nil {
		dial = func(ctx context.Context, onAbort func()) (runner.Channel, error) {
			return deps.Dial(ctx, endpoint, file.UID, onAbort)
		}
	}
	r, err := runner.New(runner.Options{
		Info:     info,
		Flow:     fl,
		Revision: deps.Revision,
		Node:     nd,
		Resolver: deps.Resolver,
		Reporter: deps.Coordinator,
		Dial:     dial,
		Outbox:   deps.Outbox,
		Logger:   flowLogger,
		FlowLog:  flowLog,
		Timing:   deps.Timing,
		TempPath: workingDir,
		Version:  deps.Version,
		Docker:   args.Docker,
		Bundles:  deps.Resolver.Bundles(),
		Now:      deps.Now,
	})
	if err != nil {
		return err
	}
	status := r.Run(flowCtx)
	logger.Info("job finished", logging.String("status", status.String()))
	return nil
}

// prepareWorkingDir checks the temp directory and creates the runner's
// private working directory inside it.
func prepareWorkingDir(args Args, logger *slog.Logger) (string, error) {
	if res := preflight.CheckDirectoryAccess("Temp directory", args.TempDir); !res.Passed {
		if args.Docker {
			logging.ErrorWithContext(logger, "temp directory unavailable", "temp_unavailable",
				logging.String("detail", res.Detail),
				logging.String(logging.FieldErrorHint, "the mapped temp directory is missing or has become unavailable from the host machine"))
		}
		return "", services.Wrap(services.ErrConfiguration, "job", "preflight", res.Detail, nil)
	}
	dir := filepath.Join(args.TempDir, "Runner-"+args.RunnerUID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "job", "preflight", "create working directory", err)
	}
	logger.Info("working directory ready", logging.String("path", dir))
	return dir, nil
}

// presentLocally reports whether path exists with the kind the library expects.
func presentLocally(path string, folders bool) bool {
	exists, isDir := fileutil.Exists(path)
	return exists && isDir == folders
}

// settleMissingFile handles a file this node cannot see: a remote node whose
// coordinator still has the file has a mapping issue; otherwise the record
// is stale and deleted.
func settleMissingFile(ctx context.Context, coord Coordinator, logger *slog.Logger, isServer bool, file *library.File, path string) error {
	if !isServer {
		onServer, err := coord.ExistsOnServer(ctx, file.UID)
		if err != nil {
			logger.Warn("failed to check file on server", logging.Error(err))
		}
		if err == nil && onServer {
			logging.ErrorWithContext(logger, "Library file exists but is not accessible from node", "mapping_issue",
				logging.String("path", path),
				logging.String(logging.FieldErrorHint, "check the node's path mappings"))
			file.Status = library.StatusMappingIssue
			file.ExecutedNodes = nil
			return coord.UpdateLibraryFile(ctx, file)
		}
	}
	logger.Info("Library file does not exist, deleting from library files", logging.String("path", path))
	return coord.DeleteLibraryFile(ctx, file.UID)
}

func acquireLock(tempDir string, fileUID uuid.UUID) (*flock.Flock, error) {
	dir := filepath.Join(tempDir, "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, fileUID.String()+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, fileUID)
	}
	return lock, nil
}

func measure(path string, folders bool, logger *slog.Logger) int64 {
	var (
		size int64
		err  error
	)
	if folders {
		size, err = fileutil.DirSize(path)
	} else {
		size, err = fileutil.Size(path)
	}
	if err != nil {
		logger.Warn("Failed retrieving size", logging.String("path", path), logging.Error(err))
		return 0
	}
	return size
}
