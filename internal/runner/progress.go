package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"flowrunner/internal/library"
	"flowrunner/internal/logging"
)

var errUpdateBusy = errors.New("update already in flight")

// stepChanged moves the cursor and tells the coordinator, waiting briefly
// for an in-flight update to finish.
func (r *Runner) stepChanged(index int, name string) {
	r.info.StepChanged(index, name)
	if err := r.sendUpdate(r.reportCtx, stepChangeWait); err != nil {
		r.logger.Debug("failed to record step change",
			logging.Int("step", index),
			logging.String(logging.FieldStep, name),
			logging.Error(err))
	}
}

// updatePercent records the active step's progress. Small changes and
// updates inside the progress interval are not sent.
func (r *Runner) updatePercent(percent float64) {
	if math.Abs(r.info.Percent()-percent) < r.timing.ProgressThreshold {
		return
	}
	if index, name := r.info.CurrentStep(); r.progress.Sample(strconv.Itoa(index)+" "+name, percent) {
		r.logger.Info(fmt.Sprintf("%s: %.1f%%", name, percent), logging.Int("step_index", index))
	}
	if last := r.lastSend.Load(); last != 0 && r.now().Sub(time.Unix(0, last)) < r.timing.ProgressInterval {
		return
	}
	r.info.SetPercent(percent)
	_ = r.sendUpdate(r.reportCtx, percentWait)
}

// sendUpdate posts a snapshot if the single update slot frees up within wait.
func (r *Runner) sendUpdate(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case r.updateSlot <- struct{}{}:
	case <-timer.C:
		return errUpdateBusy
	}
	defer func() { <-r.updateSlot }()

	now := r.now()
	r.lastSend.Store(now.UnixNano())
	r.info.Touch(now)
	return r.reporter.Update(ctx, r.info.Snapshot())
}

// setStatus stamps the terminal status and pushes it, retrying until the
// status retry window closes.
func (r *Runner) setStatus(status library.Status) {
	ended := r.now()
	r.info.UpdateFile(func(f *library.File) {
		f.Status = status
		if status == library.StatusProcessed || status == library.StatusProcessingFailed {
			f.ProcessingEnded = ended
		}
	})
	err := retry(r.reportCtx, r.timing.StatusRetryInterval, r.timing.StatusRetryWindow, r.now, func() error {
		r.calculateFinalSize()
		if err := r.sendUpdate(r.reportCtx, statusWait); err != nil {
			r.logger.Warn("Failed to set status on server", logging.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		logging.WarnWithContext(r.logger, "giving up on status update", "status_update_failed",
			logging.String("status", status.String()),
			logging.Error(err))
		return
	}
	r.logger.Debug("Set final status to: " + status.String())
}

// retry runs op until it succeeds or window has elapsed since the first
// attempt, sleeping interval between attempts.
func retry(ctx context.Context, interval, window time.Duration, now func() time.Time, op func() error) error {
	start := now()
	for {
		err := op()
		if err == nil {
			return nil
		}
		if now().Sub(start) >= window {
			return err
		}
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}
