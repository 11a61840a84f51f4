package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowrunner/internal/flow"
	"flowrunner/internal/library"
	"flowrunner/internal/logging"
	"flowrunner/internal/resolver"
	"flowrunner/internal/scripting"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
)

var separator = strings.Repeat("=", 70)

// execute walks fl from its entry step until the graph ends, a step fails,
// the job is canceled, or the step ceiling is reached.
func (r *Runner) execute(ctx context.Context, fl *flow.Flow, failureFlow bool) library.Status {
	part, err := fl.Entry()
	if err != nil {
		r.logger.Error("Failed to find Input node", logging.Error(err))
		return library.StatusProcessingFailed
	}
	if !failureFlow {
		r.info.UpdateFile(func(f *library.File) { f.ExecutedNodes = nil })
	}
	r.mu.Lock()
	r.activeFlow = fl
	r.mu.Unlock()
	r.info.SetTotalParts(len(fl.Parts))

	ceiling := r.revision.StepCeiling()
	step := 0
	r.stepChanged(step, part.DisplayName())

	for count := 0; count < ceiling; count++ {
		if r.info.Canceled() || ctx.Err() != nil {
			r.logger.Warn("Flow was canceled")
			return library.StatusProcessingFailed
		}

		step++
		r.stepChanged(step, part.DisplayName())
		r.logger.Info(separator)
		r.logger.Info(fmt.Sprintf("Executing Node %d: %s [%s]", r.executedCount()+1, part.DisplayName(), part.TypeID))
		r.logger.Info(separator)

		started := r.now()
		output, err := r.runStep(ctx, part)
		elapsed := r.now().Sub(started)
		if !failureFlow {
			r.record(part, output, elapsed)
		}
		r.logger.Info("Node execution time: " + elapsed.String())
		r.logger.Info(separator)

		ref, redirectErr := r.takeRedirect()
		if err == nil && redirectErr != nil {
			err = redirectErr
		}
		if err != nil {
			r.markFailed(part)
			logging.ErrorWithContext(r.logger, "Execution error: "+err.Error(), "step_failed",
				logging.String(logging.FieldStep, part.DisplayName()),
				logging.Error(err))
			return library.StatusProcessingFailed
		}

		if ref != nil {
			next, ok := r.revision.FlowByID(ref.UID)
			if !ok {
				r.markFailed(part)
				r.logger.Error(fmt.Sprintf("Unable goto flow with UID:%s (%s)", ref.UID, ref.Name))
				return library.StatusProcessingFailed
			}
			r.logger.Info("Changing flows to: " + next.Name)
			r.mu.Lock()
			r.visited[next.UID] = true
			r.activeFlow = next
			r.mu.Unlock()
			fl = next
			part, err = fl.Entry()
			if err != nil {
				r.logger.Error("Failed to find Input node", logging.Error(err))
				return library.StatusProcessingFailed
			}
			r.info.SetTotalParts(len(fl.Parts))
			step = 0
			continue
		}

		r.logger.Debug(fmt.Sprintf("output: %d", output))
		if output == flow.ErrorOutput {
			r.markFailed(part)
			r.logger.Error("node returned error code: " + part.DisplayName())
			return library.StatusProcessingFailed
		}
		conn, ok := part.Target(output)
		if !ok {
			r.logger.Debug("Flow completed")
			return library.StatusProcessed
		}
		next, ok := fl.Part(conn.InputNode)
		if !ok {
			r.logger.Warn(fmt.Sprintf("Couldn't find output node, flow completed: %d", output))
			return library.StatusProcessed
		}
		part = next
	}

	err = services.Wrap(services.ErrLoopProtection, "runner", "execute", "step ceiling reached", nil)
	logging.ErrorWithContext(r.logger, "Too many steps in flow, processing aborted", "loop_protection",
		logging.Int("ceiling", ceiling),
		logging.Error(err))
	return library.StatusProcessingFailed
}

// runStep resolves and executes one part. Any failure, including a panic
// inside the step, is returned as an error with output -1.
func (r *Runner) runStep(ctx context.Context, part *flow.Part) (output int, err error) {
	step, err := r.resolver.Resolve(part.TypeID, part.Model)
	if err != nil {
		return flow.ErrorOutput, err
	}
	r.setActive(step)
	defer r.setActive(nil)
	defer func() {
		if rec := recover(); rec != nil {
			output = flow.ErrorOutput
			err = services.Wrap(services.ErrStepFailed, "runner", "execute", fmt.Sprintf("step panicked: %v", rec), nil)
		}
	}()

	stepCtx := services.WithStep(ctx, part.DisplayName())
	if !steps.RunPreExecute(step, r.args) {
		return flow.ErrorOutput, services.Wrap(services.ErrStepFailed, "runner", "pre-execute", "PreExecute failed", nil)
	}
	output, err = step.Execute(stepCtx, r.args)
	if err != nil {
		return flow.ErrorOutput, err
	}
	return output, nil
}

func (r *Runner) record(part *flow.Part, output int, elapsed time.Duration) {
	typeID := part.TypeID
	if resolver.IsScript(typeID) {
		typeID = scripting.HistoryTypeID
	}
	r.info.UpdateFile(func(f *library.File) {
		f.ExecutedNodes = append(f.ExecutedNodes, library.ExecutedStep{
			StepName:   part.DisplayName(),
			StepTypeID: typeID,
			Output:     output,
			Duration:   elapsed,
		})
	})
}

func (r *Runner) executedCount() int {
	var n int
	r.info.UpdateFile(func(f *library.File) { n = len(f.ExecutedNodes) })
	return n
}

func (r *Runner) markFailed(part *flow.Part) {
	r.mu.Lock()
	r.failedStep = part.DisplayName()
	r.mu.Unlock()
}
