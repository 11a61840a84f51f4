package runner

import (
	"context"
	"time"

	"flowrunner/internal/logging"
)

// heartbeat says hello to the coordinator until ctx ends. If no hello has
// succeeded within the heartbeat timeout the job is canceled.
func (r *Runner) heartbeat(ctx context.Context, channel Channel) {
	ticker := time.NewTicker(r.timing.HeartbeatInterval)
	defer ticker.Stop()

	lastSuccess := r.now()
	for {
		ok := channel != nil && channel.Hello(ctx, r.info.Snapshot())
		if ctx.Err() != nil {
			return
		}
		if ok {
			lastSuccess = r.now()
		} else if r.now().Sub(lastSuccess) > r.timing.HeartbeatTimeout {
			logging.ErrorWithContext(r.logger, "Hello failed, cancelling flow", "hello_failed",
				logging.Duration("since_last_success", r.now().Sub(lastSuccess)))
			r.Cancel()
			return
		} else {
			r.logger.Warn("Hello failed, if continues the flow will be canceled",
				logging.String(logging.FieldEventType, "hello_failed"))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
