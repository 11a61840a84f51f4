package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flowrunner/internal/config"
	"flowrunner/internal/flow"
	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
	"flowrunner/internal/logging"
	"flowrunner/internal/node"
	"flowrunner/internal/resolver"
	"flowrunner/internal/revision"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
)

const (
	stepChangeWait = time.Second
	percentWait    = 50 * time.Millisecond
	statusWait     = time.Second

	// progressLogBucket is the percentage step between progress lines in
	// the job log.
	progressLogBucket = 25
)

// Reporter sends job state to the coordinator.
type Reporter interface {
	Start(ctx context.Context, snap jobstate.Snapshot) error
	Update(ctx context.Context, snap jobstate.Snapshot) error
	Complete(ctx context.Context, snap jobstate.Snapshot) error
	SaveFullLog(ctx context.Context, runnerUID, fileUID uuid.UUID, log string) error
}

// StepResolver builds executable steps from flow parts.
type StepResolver interface {
	Resolve(typeID string, props map[string]any) (steps.Step, error)
}

// Channel is the live connection to the coordinator.
type Channel interface {
	Hello(ctx context.Context, payload any) bool
	LogMessage(line string)
	Close()
}

// DialFunc opens the live channel. onAbort is called when the coordinator
// asks for the job to stop.
type DialFunc func(ctx context.Context, onAbort func()) (Channel, error)

// ReportStore keeps completion reports the coordinator never acknowledged.
type ReportStore interface {
	Save(ctx context.Context, snap jobstate.Snapshot, log string) (int64, error)
}

// Options configures a Runner.
type Options struct {
	Info     *jobstate.Info
	Flow     *flow.Flow
	Revision *revision.Revision
	Node     *node.Node
	Resolver StepResolver
	Reporter Reporter
	Dial     DialFunc
	Outbox   ReportStore
	Logger   *slog.Logger
	FlowLog  *logging.FlowLog
	Timing   config.Timing
	TempPath string
	Version  string
	Docker   bool
	Bundles  []resolver.Bundle
	Now      func() time.Time
}

// Runner executes one flow against one library file.
type Runner struct {
	info     *jobstate.Info
	flow     *flow.Flow
	revision *revision.Revision
	node     *node.Node
	resolver StepResolver
	reporter Reporter
	dial     DialFunc
	outbox   ReportStore
	logger   *slog.Logger
	flowLog  *logging.FlowLog
	timing   config.Timing
	tempPath string
	version  string
	docker   bool
	bundles  []resolver.Bundle
	now      func() time.Time

	args       *steps.Args
	reportCtx  context.Context
	cancelRun  context.CancelFunc
	updateSlot chan struct{}
	lastSend   atomic.Int64
	progress   *logging.ProgressSampler

	mu          sync.Mutex
	active      steps.Step
	visited     map[uuid.UUID]bool
	redirect    *flow.Reference
	redirectErr error
	activeFlow  *flow.Flow
	failedStep  string
}

// New validates opts and constructs a Runner.
func New(opts Options) (*Runner, error) {
	switch {
	case opts.Info == nil:
		return nil, errors.New("runner: job info is required")
	case opts.Flow == nil:
		return nil, errors.New("runner: flow is required")
	case opts.Revision == nil:
		return nil, errors.New("runner: revision is required")
	case opts.Resolver == nil:
		return nil, errors.New("runner: step resolver is required")
	case opts.Reporter == nil:
		return nil, errors.New("runner: reporter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	nd := opts.Node
	if nd == nil {
		nd = &node.Node{}
	}
	timing := opts.Timing
	if timing == (config.Timing{}) {
		defaults := config.Default()
		timing = defaults.Timing()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		info:       opts.Info,
		flow:       opts.Flow,
		revision:   opts.Revision,
		node:       nd,
		resolver:   opts.Resolver,
		reporter:   opts.Reporter,
		dial:       opts.Dial,
		outbox:     opts.Outbox,
		logger:     logger,
		flowLog:    opts.FlowLog,
		timing:     timing,
		tempPath:   opts.TempPath,
		version:    opts.Version,
		docker:     opts.Docker,
		bundles:    opts.Bundles,
		now:        now,
		updateSlot: make(chan struct{}, 1),
		progress:   logging.NewProgressSampler(progressLogBucket),
		visited:    map[uuid.UUID]bool{opts.Flow.UID: true},
		activeFlow: opts.Flow,
	}, nil
}

// Run executes the flow, runs the failure flow when needed, and reports the
// result. It returns the status of the primary flow.
func (r *Runner) Run(ctx context.Context) library.Status {
	r.reportCtx = context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelRun = cancel
	defer cancel()
	stopAfter := context.AfterFunc(ctx, r.Cancel)
	defer stopAfter()

	r.args = r.newArgs()
	channel := r.connect(runCtx)
	if channel != nil && r.flowLog != nil {
		r.flowLog.SetSink(channel.LogMessage)
	}

	hbCtx, stopHeartbeat := context.WithCancel(runCtx)
	var group errgroup.Group
	group.Go(func() error {
		r.heartbeat(hbCtx, channel)
		return nil
	})

	status := r.runFlows(runCtx)

	stopHeartbeat()
	_ = group.Wait()
	if r.flowLog != nil {
		r.flowLog.SetSink(nil)
	}
	if channel != nil {
		channel.Close()
	}
	r.finalize(r.reportCtx)
	return status
}

func (r *Runner) runFlows(ctx context.Context) library.Status {
	if err := r.reporter.Start(r.reportCtx, r.info.Snapshot()); err != nil {
		logging.ErrorWithContext(r.logger, "failed to register runner with coordinator", "runner_start_failed",
			logging.Error(err))
		r.setStatus(library.StatusProcessingFailed)
		return library.StatusProcessingFailed
	}

	r.writeHeader()
	status := r.execute(ctx, r.flow, false)
	r.setStatus(status)
	if status != library.StatusProcessingFailed || r.info.Canceled() {
		return status
	}

	failureFlow, ok := r.revision.DefaultFailureFlow()
	if !ok {
		return status
	}
	r.mu.Lock()
	failedStep, flowName := r.failedStep, r.activeFlow.Name
	r.mu.Unlock()
	r.args.SetVariable("FailedNode", failedStep)
	r.args.SetVariable("FlowName", flowName)
	r.logger.Info("Running failure flow", logging.String(logging.FieldFlow, failureFlow.Name))
	r.execute(ctx, failureFlow, true)
	return status
}

// Cancel stops the job. Only the first call has any effect.
func (r *Runner) Cancel() {
	if !r.info.Cancel() {
		return
	}
	r.logger.Info("##### CANCELING FLOW!")
	if r.cancelRun != nil {
		r.cancelRun()
	}
	r.mu.Lock()
	step := r.active
	r.mu.Unlock()
	if step == nil {
		return
	}
	if err := steps.RunCancel(step); err != nil {
		r.logger.Warn("step cancel failed", logging.Error(err))
	}
}

func (r *Runner) connect(ctx context.Context) Channel {
	if r.dial == nil {
		return nil
	}
	channel, err := r.dial(ctx, r.Cancel)
	if err != nil {
		logging.WarnWithContext(r.logger, "failed to open live channel", "liveness_dial_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check coordinator base_url; the job is canceled if hello keeps failing"))
		return nil
	}
	return channel
}

func (r *Runner) newArgs() *steps.Args {
	file := r.info.File()
	workingFile := r.node.Map(file.Name)
	r.info.SetWorkingFile(workingFile)

	args := steps.NewArgs(r.logger, workingFile, steps.Hooks{
		Progress:           r.updatePercent,
		GotoFlow:           r.requestRedirect,
		WorkingFileChanged: r.info.SetWorkingFile,
		PluginSettings:     r.revision.PluginSetting,
		MapPath:            r.node.Map,
		UnmapPath:          r.node.UnMap,
	})
	args.FileUID = file.UID
	args.LibraryPath = r.info.LibraryPath
	args.TempPath = r.tempPath
	args.RelativeFile = file.RelativePath
	args.IsDirectory = r.info.IsDirectory
	for k, v := range r.revision.Variables {
		if _, exists := args.Variables[k]; !exists {
			args.Variables[k] = v
		}
	}
	if len(file.OriginalMetadata) > 0 {
		for k, v := range file.OriginalMetadata {
			args.Metadata[k] = v
		}
	}
	return args
}

func (r *Runner) requestRedirect(ref flow.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.visited[ref.UID] {
		err := services.Wrap(services.ErrLoopProtection, "runner", "goto flow",
			fmt.Sprintf("flow '%s' ['%s'] has already been executed, cannot link to existing flow as this could cause an infinite loop", ref.UID, ref.Name),
			nil)
		r.redirectErr = err
		return err
	}
	r.redirect = &ref
	return nil
}

func (r *Runner) takeRedirect() (*flow.Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.redirect, r.redirectErr
	r.redirect, r.redirectErr = nil, nil
	return ref, err
}

func (r *Runner) setActive(step steps.Step) {
	r.mu.Lock()
	r.active = step
	r.mu.Unlock()
}
