package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"flowrunner/internal/config"
	"flowrunner/internal/flow"
	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
	"flowrunner/internal/logging"
	"flowrunner/internal/revision"
	"flowrunner/internal/scripting"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
)

type funcStep func(ctx context.Context, args *steps.Args) (int, error)

func (f funcStep) Execute(ctx context.Context, args *steps.Args) (int, error) { return f(ctx, args) }

func returns(output int) steps.Step {
	return funcStep(func(context.Context, *steps.Args) (int, error) { return output, nil })
}

type fakeResolver struct {
	mu    sync.Mutex
	steps map[string]func() steps.Step
}

func newResolver() *fakeResolver {
	return &fakeResolver{steps: make(map[string]func() steps.Step)}
}

func (f *fakeResolver) add(typeID string, step steps.Step) *fakeResolver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[typeID] = func() steps.Step { return step }
	return f
}

func (f *fakeResolver) Resolve(typeID string, _ map[string]any) (steps.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn, ok := f.steps[typeID]
	if !ok {
		return nil, services.Wrap(services.ErrNodeLoad, "test", "resolve", "failed to load step: "+typeID, nil)
	}
	return fn(), nil
}

type fakeReporter struct {
	mu          sync.Mutex
	starts      int
	updates     []jobstate.Snapshot
	completes   []jobstate.Snapshot
	logs        []string
	startErr    error
	completeErr error
}

func (f *fakeReporter) Start(context.Context, jobstate.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeReporter) Update(_ context.Context, snap jobstate.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, snap)
	return nil
}

func (f *fakeReporter) Complete(_ context.Context, snap jobstate.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, snap)
	return f.completeErr
}

func (f *fakeReporter) SaveFullLog(_ context.Context, _, _ uuid.UUID, log string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeReporter) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeReporter) lastComplete(t *testing.T) jobstate.Snapshot {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.completes) == 0 {
		t.Fatal("expected a completion report")
	}
	return f.completes[len(f.completes)-1]
}

type fakeChannel struct {
	helloOK atomic.Bool
	hellos  atomic.Int32
	closed  atomic.Bool
}

func (c *fakeChannel) Hello(context.Context, any) bool {
	c.hellos.Add(1)
	return c.helloOK.Load()
}

func (c *fakeChannel) LogMessage(string) {}

func (c *fakeChannel) Close() { c.closed.Store(true) }

type fakeOutbox struct {
	saved []jobstate.Snapshot
}

func (f *fakeOutbox) Save(_ context.Context, snap jobstate.Snapshot, _ string) (int64, error) {
	f.saved = append(f.saved, snap)
	return int64(len(f.saved)), nil
}

func fastTiming() config.Timing {
	return config.Timing{
		HeartbeatInterval:       5 * time.Millisecond,
		HeartbeatTimeout:        time.Hour,
		HelloTimeout:            time.Second,
		ProgressInterval:        2 * time.Second,
		ProgressThreshold:       0.1,
		StatusRetryInterval:     time.Millisecond,
		StatusRetryWindow:       5 * time.Millisecond,
		CompletionRetryInterval: time.Millisecond,
		CompletionRetryWindow:   5 * time.Millisecond,
	}
}

// linearFlow chains one part per type id; each output 1 feeds the next part.
func linearFlow(name string, typeIDs ...string) *flow.Flow {
	fl := &flow.Flow{UID: uuid.New(), Name: name, Enabled: true}
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

type harness struct {
	runner   *Runner
	reporter *fakeReporter
	flowLog  *logging.FlowLog
	info     *jobstate.Info
}

func newHarness(t *testing.T, fl *flow.Flow, rev *revision.Revision, res StepResolver, mutate ...func(*Options)) *harness {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "input.mkv")
	if err := os.WriteFile(input, []byte("media"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	info := &jobstate.Info{RunnerUID: uuid.New(), StartedAt: time.Now()}
	info.SetFile(library.File{UID: uuid.New(), Name: input, Status: library.StatusProcessing, OriginalSize: 5})

	flowLog := logging.NewFlowLog(slog.LevelDebug)
	reporter := &fakeReporter{}
	if rev.Flows == nil {
		rev.Flows = []flow.Flow{*fl}
	}
	opts := Options{
		Info:     info,
		Flow:     fl,
		Revision: rev,
		Resolver: res,
		Reporter: reporter,
		Logger:   slog.New(flowLog.Handler()),
		FlowLog:  flowLog,
		Timing:   fastTiming(),
		TempPath: dir,
		Version:  "test",
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{runner: r, reporter: reporter, flowLog: flowLog, info: info}
}

func TestLinearFlowProcessed(t *testing.T) {
	fl := linearFlow("Linear", "test.Entry", "test.Transform", "test.Finish")
	res := newResolver().add("test.Entry", returns(1)).add("test.Transform", returns(1)).add("test.Finish", returns(1))
	h := newHarness(t, fl, &revision.Revision{}, res)

	if status := h.runner.Run(context.Background()); status != library.StatusProcessed {
		t.Fatalf("status = %s, want Processed", status)
	}
	snap := h.reporter.lastComplete(t)
	if snap.LibraryFile.Status != library.StatusProcessed {
		t.Fatalf("reported status = %s", snap.LibraryFile.Status)
	}
	if got := len(snap.LibraryFile.ExecutedNodes); got != 3 {
		t.Fatalf("history length = %d, want 3", got)
	}
	if snap.LibraryFile.ProcessingEnded.IsZero() || snap.LibraryFile.FinalSize != 5 {
		t.Fatalf("final stats not recorded: %+v", snap.LibraryFile)
	}
	if h.reporter.starts != 1 || len(h.reporter.logs) != 1 {
		t.Fatalf("starts=%d logs=%d", h.reporter.starts, len(h.reporter.logs))
	}
	log := h.flowLog.String()
	for _, want := range []string{"Executing Flow: Linear", "Executing Node 3: test.Finish [test.Finish]", "Platform: "} {
		if !strings.Contains(log, want) {
			t.Fatalf("log missing %q:\n%s", want, log)
		}
	}
}

func TestFailingStepRunsFailureFlow(t *testing.T) {
	fl := linearFlow("Primary", "test.Entry", "test.Broken", "test.Finish")
	fl.Parts[1].Label = "Transcode"
	failure := linearFlow("On Failure", "test.Report")
	failure.Type = flow.TypeFailure
	failure.Default = true

	var failedNode, flowName any
	res := newResolver().
		add("test.Entry", returns(1)).
		add("test.Broken", funcStep(func(context.Context, *steps.Args) (int, error) { return 0, errors.New("encoder crashed") })).
		add("test.Finish", returns(1)).
		add("test.Report", funcStep(func(_ context.Context, a *steps.Args) (int, error) {
			failedNode, _ = a.Variable("FailedNode")
			flowName, _ = a.Variable("FlowName")
			return 1, nil
		}))
	rev := &revision.Revision{Flows: []flow.Flow{*fl, *failure}}
	h := newHarness(t, fl, rev, res)

	if status := h.runner.Run(context.Background()); status != library.StatusProcessingFailed {
		t.Fatalf("status = %s, want ProcessingFailed", status)
	}
	if failedNode != "Transcode" || flowName != "Primary" {
		t.Fatalf("failure flow variables = %v, %v", failedNode, flowName)
	}
	snap := h.reporter.lastComplete(t)
	if snap.LibraryFile.Status != library.StatusProcessingFailed {
		t.Fatalf("failure flow overrode status: %s", snap.LibraryFile.Status)
	}
	nodes := snap.LibraryFile.ExecutedNodes
	if len(nodes) != 2 || nodes[1].Output != flow.ErrorOutput || nodes[1].StepName != "Transcode" {
		t.Fatalf("unexpected history %+v", nodes)
	}
}

func TestOutputRouting(t *testing.T) {
	tests := []struct {
		name   string
		output int
		want   library.Status
	}{
		{name: "error output with connections", output: -1, want: library.StatusProcessingFailed},
		{name: "unconnected output", output: 2, want: library.StatusProcessed},
		{name: "end of flow", output: 0, want: library.StatusProcessed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl := linearFlow("Routing", "test.Entry", "test.Next")
			fl.Parts[0].Outputs = 2
			res := newResolver().add("test.Entry", returns(tt.output)).add("test.Next", returns(1))
			h := newHarness(t, fl, &revision.Revision{}, res)
			if got := h.runner.Run(context.Background()); got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMissingTargetPartCompletes(t *testing.T) {
	fl := linearFlow("Dangling", "test.Entry")
	fl.Parts[0].OutputConnections = []flow.Connection{{Output: 1, InputNode: uuid.New()}}
	h := newHarness(t, fl, &revision.Revision{}, newResolver().add("test.Entry", returns(1)))
	if got := h.runner.Run(context.Background()); got != library.StatusProcessed {
		t.Fatalf("status = %s", got)
	}
	if !strings.Contains(h.flowLog.String(), "Couldn't find output node") {
		t.Fatalf("expected warning in log")
	}
}

func TestGotoFlowCycleFails(t *testing.T) {
	for _, swallow := range []bool{false, true} {
		fl := linearFlow("Loop", "test.Redirect", "test.Finish")
		finished := false
		res := newResolver().
			add("test.Redirect", funcStep(func(_ context.Context, a *steps.Args) (int, error) {
				if err := a.GotoFlow(fl.Ref()); err != nil && !swallow {
					return 0, err
				}
				return 1, nil
			})).
			add("test.Finish", funcStep(func(context.Context, *steps.Args) (int, error) {
				finished = true
				return 1, nil
			}))
		h := newHarness(t, fl, &revision.Revision{}, res)
		if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
			t.Fatalf("swallow=%v: status = %s", swallow, got)
		}
		if finished {
			t.Fatalf("swallow=%v: flow continued after cycle", swallow)
		}
		if !strings.Contains(h.flowLog.String(), "has already been executed, cannot link to existing flow as this could cause an infinite loop") {
			t.Fatalf("swallow=%v: cycle error not logged", swallow)
		}
	}
}

func TestGotoFlowSwitchesFlows(t *testing.T) {
	target := linearFlow("Target", "test.TargetEntry", "test.TargetFinish")
	primary := linearFlow("Primary", "test.Redirect", "test.Unreached")
	res := newResolver().
		add("test.Redirect", funcStep(func(_ context.Context, a *steps.Args) (int, error) {
			return 1, a.GotoFlow(target.Ref())
		})).
		add("test.Unreached", funcStep(func(context.Context, *steps.Args) (int, error) {
			return 0, errors.New("primary flow continued")
		})).
		add("test.TargetEntry", returns(1)).
		add("test.TargetFinish", returns(1))
	rev := &revision.Revision{Flows: []flow.Flow{*primary, *target}}
	h := newHarness(t, primary, rev, res)

	if got := h.runner.Run(context.Background()); got != library.StatusProcessed {
		t.Fatalf("status = %s", got)
	}
	snap := h.reporter.lastComplete(t)
	if len(snap.LibraryFile.ExecutedNodes) != 3 || snap.TotalParts != 2 {
		t.Fatalf("history=%d total=%d", len(snap.LibraryFile.ExecutedNodes), snap.TotalParts)
	}
	if !strings.Contains(h.flowLog.String(), "Changing flows to: Target") {
		t.Fatal("flow switch not logged")
	}
}

func TestGotoUnknownFlowFails(t *testing.T) {
	fl := linearFlow("Primary", "test.Redirect")
	res := newResolver().add("test.Redirect", funcStep(func(_ context.Context, a *steps.Args) (int, error) {
		return 1, a.GotoFlow(flow.Reference{UID: uuid.New(), Name: "Gone"})
	}))
	h := newHarness(t, fl, &revision.Revision{}, res)
	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
		t.Fatalf("status = %s", got)
	}
}

type blockingStep struct {
	started chan struct{}
	once    sync.Once
	cancels atomic.Int32
}

func (s *blockingStep) Execute(ctx context.Context, _ *steps.Args) (int, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return -1, nil
}

func (s *blockingStep) Cancel() error {
	s.cancels.Add(1)
	return nil
}

func TestCancelStopsFlowAndCancelsStepOnce(t *testing.T) {
	fl := linearFlow("Cancelable", "test.Block", "test.Finish")
	failure := linearFlow("On Failure", "test.Report")
	failure.Type, failure.Default = flow.TypeFailure, true
	block := &blockingStep{started: make(chan struct{})}
	var reported atomic.Bool
	res := newResolver().add("test.Block", block).add("test.Finish", returns(1)).
		add("test.Report", funcStep(func(context.Context, *steps.Args) (int, error) {
			reported.Store(true)
			return 1, nil
		}))
	var onAbort func()
	channel := &fakeChannel{}
	channel.helloOK.Store(true)
	h := newHarness(t, fl, &revision.Revision{Flows: []flow.Flow{*fl, *failure}}, res, func(o *Options) {
		o.Dial = func(_ context.Context, abort func()) (Channel, error) {
			onAbort = abort
			return channel, nil
		}
	})

	done := make(chan library.Status, 1)
	go func() { done <- h.runner.Run(context.Background()) }()
	<-block.started
	onAbort()
	h.runner.Cancel()

	select {
	case status := <-done:
		if status != library.StatusProcessingFailed {
			t.Fatalf("status = %s", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	if got := block.cancels.Load(); got != 1 {
		t.Fatalf("step Cancel called %d times, want 1", got)
	}
	if reported.Load() {
		t.Fatal("failure flow ran after cancellation")
	}
	if !h.info.Canceled() || !channel.closed.Load() {
		t.Fatalf("canceled=%v closed=%v", h.info.Canceled(), channel.closed.Load())
	}
	if !strings.Contains(h.flowLog.String(), "##### CANCELING FLOW!") {
		t.Fatal("cancel banner not logged")
	}
	if !h.reporter.lastComplete(t).Canceled {
		t.Fatal("completion report not marked aborted")
	}
}

func TestHeartbeatFailureCancelsFlow(t *testing.T) {
	fl := linearFlow("Heartbeat", "test.Block")
	block := &blockingStep{started: make(chan struct{})}
	channel := &fakeChannel{}
	h := newHarness(t, fl, &revision.Revision{}, newResolver().add("test.Block", block), func(o *Options) {
		o.Timing.HeartbeatTimeout = 30 * time.Millisecond
		o.Dial = func(context.Context, func()) (Channel, error) { return channel, nil }
	})

	done := make(chan library.Status, 1)
	go func() { done <- h.runner.Run(context.Background()) }()
	select {
	case status := <-done:
		if status != library.StatusProcessingFailed {
			t.Fatalf("status = %s", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat never canceled the job")
	}
	if !h.info.Canceled() || block.cancels.Load() != 1 {
		t.Fatalf("canceled=%v cancels=%d", h.info.Canceled(), block.cancels.Load())
	}
	log := h.flowLog.String()
	for _, want := range []string{"Hello failed, if continues the flow will be canceled", "Hello failed, cancelling flow"} {
		if !strings.Contains(log, want) {
			t.Fatalf("log missing %q", want)
		}
	}
}

func TestStepCeilingStopsLoops(t *testing.T) {
	fl := linearFlow("Spin", "test.Entry", "test.Spin")
	fl.Parts[1].OutputConnections = []flow.Connection{{Output: 1, InputNode: fl.Parts[1].UID}}
	var runs atomic.Int32
	res := newResolver().add("test.Entry", returns(1)).add("test.Spin", funcStep(func(context.Context, *steps.Args) (int, error) {
		runs.Add(1)
		return 1, nil
	}))
	h := newHarness(t, fl, &revision.Revision{MaxNodes: 10}, res)

	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
		t.Fatalf("status = %s", got)
	}
	if got := runs.Load(); got != revision.MinStepCeiling-1 {
		t.Fatalf("spin ran %d times, want %d", got, revision.MinStepCeiling-1)
	}
	if !strings.Contains(h.flowLog.String(), "Too many steps in flow, processing aborted") {
		t.Fatal("ceiling not logged")
	}
}

func TestStepCeilingSpansRedirects(t *testing.T) {
	chain := func(n int, last ...string) []string {
		types := make([]string, 0, n+len(last))
		for range n {
			types = append(types, "test.Work")
		}
		return append(types, last...)
	}
	target := linearFlow("Second", chain(19)...)
	primary := linearFlow("First", chain(19, "test.Redirect")...)
	var runs atomic.Int32
	res := newResolver().
		add("test.Work", funcStep(func(context.Context, *steps.Args) (int, error) {
			runs.Add(1)
			return 1, nil
		})).
		add("test.Redirect", funcStep(func(_ context.Context, a *steps.Args) (int, error) {
			return 1, a.GotoFlow(target.Ref())
		}))
	h := newHarness(t, primary, &revision.Revision{Flows: []flow.Flow{*primary, *target}}, res)

	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
		t.Fatalf("status = %s", got)
	}
	// 20 iterations in the first flow leave 5 for the second.
	if got, want := runs.Load(), int32(revision.MinStepCeiling-1); got != want {
		t.Fatalf("work steps ran %d times, want %d", got, want)
	}
	if !strings.Contains(h.flowLog.String(), "Too many steps in flow, processing aborted") {
		t.Fatal("ceiling not logged")
	}
}

type vetoStep struct{ executed bool }

func (s *vetoStep) PreExecute(*steps.Args) bool { return false }

func (s *vetoStep) Execute(context.Context, *steps.Args) (int, error) {
	s.executed = true
	return 1, nil
}

func TestPreExecuteFalseFailsStep(t *testing.T) {
	fl := linearFlow("Veto", "test.Veto")
	veto := &vetoStep{}
	h := newHarness(t, fl, &revision.Revision{}, newResolver().add("test.Veto", veto))
	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
		t.Fatalf("status = %s", got)
	}
	if veto.executed {
		t.Fatal("Execute ran after PreExecute returned false")
	}
	if !strings.Contains(h.flowLog.String(), "PreExecute failed") {
		t.Fatal("PreExecute failure not logged")
	}
}

func TestUnresolvableStepRecordsErrorOutput(t *testing.T) {
	fl := linearFlow("Missing", "test.Nope")
	h := newHarness(t, fl, &revision.Revision{}, newResolver())
	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
		t.Fatalf("status = %s", got)
	}
	nodes := h.reporter.lastComplete(t).LibraryFile.ExecutedNodes
	if len(nodes) != 1 || nodes[0].Output != flow.ErrorOutput {
		t.Fatalf("unexpected history %+v", nodes)
	}
}

func TestPanickingStepFails(t *testing.T) {
	fl := linearFlow("Panic", "test.Panic")
	res := newResolver().add("test.Panic", funcStep(func(context.Context, *steps.Args) (int, error) { panic("boom") }))
	h := newHarness(t, fl, &revision.Revision{}, res)
	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed {
		t.Fatalf("status = %s", got)
	}
}

func TestScriptStepsRecordScriptType(t *testing.T) {
	fl := linearFlow("Scripted", "Scripts.Check")
	h := newHarness(t, fl, &revision.Revision{}, newResolver().add("Scripts.Check", returns(1)))
	h.runner.Run(context.Background())
	nodes := h.reporter.lastComplete(t).LibraryFile.ExecutedNodes
	if len(nodes) != 1 || nodes[0].StepTypeID != scripting.HistoryTypeID {
		t.Fatalf("unexpected history %+v", nodes)
	}
}

func TestHistoryClearedOnPrimaryRun(t *testing.T) {
	fl := linearFlow("Again", "test.Entry")
	h := newHarness(t, fl, &revision.Revision{}, newResolver().add("test.Entry", returns(1)))
	h.info.UpdateFile(func(f *library.File) {
		f.ExecutedNodes = []library.ExecutedStep{{StepName: "old"}, {StepName: "older"}}
	})
	h.runner.Run(context.Background())
	nodes := h.reporter.lastComplete(t).LibraryFile.ExecutedNodes
	if len(nodes) != 1 || nodes[0].StepName != "test.Entry" {
		t.Fatalf("history not reset: %+v", nodes)
	}
}

func TestStartFailureSkipsExecution(t *testing.T) {
	fl := linearFlow("Unstarted", "test.Entry")
	ran := false
	res := newResolver().add("test.Entry", funcStep(func(context.Context, *steps.Args) (int, error) {
		ran = true
		return 1, nil
	}))
	h := newHarness(t, fl, &revision.Revision{}, res)
	h.reporter.startErr = errors.New("coordinator refused")
	if got := h.runner.Run(context.Background()); got != library.StatusProcessingFailed || ran {
		t.Fatalf("status=%s ran=%v", got, ran)
	}
}

func TestUndeliveredCompletionGoesToOutbox(t *testing.T) {
	fl := linearFlow("Offline", "test.Entry")
	box := &fakeOutbox{}
	h := newHarness(t, fl, &revision.Revision{}, newResolver().add("test.Entry", returns(1)), func(o *Options) {
		o.Outbox = box
	})
	h.reporter.completeErr = errors.New("connection refused")

	if got := h.runner.Run(context.Background()); got != library.StatusProcessed {
		t.Fatalf("status = %s", got)
	}
	if len(h.reporter.completes) < 2 {
		t.Fatalf("completion not retried: %d attempts", len(h.reporter.completes))
	}
	if len(box.saved) != 1 || box.saved[0].LibraryFile.Status != library.StatusProcessed {
		t.Fatalf("outbox = %+v", box.saved)
	}
	if !strings.Contains(h.flowLog.String(), "failed to inform coordinator of flow completion") {
		t.Fatal("give-up not logged")
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestProgressUpdatesAreThrottled(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := newHarness(t, linearFlow("Progress", "test.Entry"), &revision.Revision{}, newResolver(), func(o *Options) {
		o.Now = clock.Now
	})
	r := h.runner
	r.reportCtx = context.Background()

	r.updatePercent(0.05)
	if got := h.reporter.updateCount(); got != 0 {
		t.Fatalf("sub-threshold change sent %d updates", got)
	}
	r.updatePercent(10)
	if got := h.reporter.updateCount(); got != 1 {
		t.Fatalf("first change sent %d updates", got)
	}
	clock.Advance(time.Second)
	r.updatePercent(20)
	if got := h.reporter.updateCount(); got != 1 {
		t.Fatalf("update inside interval was sent")
	}
	clock.Advance(2 * time.Second)
	r.updatePercent(30)
	if got := h.reporter.updateCount(); got != 2 {
		t.Fatalf("update after interval not sent: %d", got)
	}
	if got := h.info.Percent(); got != 30 {
		t.Fatalf("percent = %v", got)
	}

	clock.Advance(3 * time.Second)
	r.updateSlot <- struct{}{}
	r.updatePercent(50)
	<-r.updateSlot
	if got := h.reporter.updateCount(); got != 2 {
		t.Fatalf("update sent while slot busy")
	}
}

func TestProgressLinesSampledPerStep(t *testing.T) {
	h := newHarness(t, linearFlow("Progress", "test.Entry"), &revision.Revision{}, newResolver())
	r := h.runner
	r.reportCtx = context.Background()

	h.info.StepChanged(1, "Encode")
	for _, p := range []float64{10, 20, 30, 60} {
		r.updatePercent(p)
	}
	h.info.StepChanged(2, "Encode")
	r.updatePercent(5)

	out := h.flowLog.String()
	for _, want := range []string{"Encode: 10.0%", "Encode: 30.0%", "Encode: 60.0%", "Encode: 5.0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in job log:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Encode: 20.0%") {
		t.Fatalf("same-bucket progress logged:\n%s", out)
	}
}

func TestPlatform(t *testing.T) {
	tests := []struct {
		docker       bool
		goos, goarch string
		want         string
	}{
		{docker: true, goos: "linux", goarch: "amd64", want: "Docker"},
		{goos: "linux", goarch: "arm64", want: "Linux (ARM)"},
		{goos: "darwin", goarch: "arm64", want: "Mac (ARM)"},
		{goos: "windows", goarch: "amd64", want: "Windows"},
		{goos: "freebsd", goarch: "amd64", want: "freebsd"},
	}
	for _, tt := range tests {
		if got := platform(tt.docker, tt.goos, tt.goarch); got != tt.want {
			t.Fatalf("platform(%v, %s, %s) = %q, want %q", tt.docker, tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestRetryStopsAfterWindow(t *testing.T) {
	var attempts int
	err := retry(context.Background(), time.Millisecond, 10*time.Millisecond, time.Now, func() error {
		attempts++
		return errors.New("down")
	})
	if err == nil || attempts < 2 {
		t.Fatalf("err=%v attempts=%d", err, attempts)
	}

	attempts = 0
	err = retry(context.Background(), time.Millisecond, time.Second, time.Now, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("down")
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("err=%v attempts=%d", err, attempts)
	}
}
