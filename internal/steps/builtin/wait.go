package builtin

import (
	"context"
	"fmt"
	"time"

	"flowrunner/internal/steps"
)

// Wait pauses the flow, reporting progress once a second.
type Wait struct {
	Duration time.Duration
}

func waitDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeWait,
		Description: "Pauses the flow",
		Inputs:      1,
		Outputs:     1,
		New:         func() steps.Step { return &Wait{} },
		Fields: []steps.Field{
			steps.DurationField("Duration", func(s *Wait, v time.Duration) { s.Duration = v }),
		},
	}
}

func (s *Wait) Execute(ctx context.Context, args *steps.Args) (int, error) {
	if s.Duration <= 0 {
		return 1, nil
	}
	start := time.Now()
	deadline := time.NewTimer(s.Duration)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return -1, fmt.Errorf("wait interrupted: %w", ctx.Err())
		case <-deadline.C:
			args.UpdateProgress(100)
			return 1, nil
		case <-tick.C:
			args.UpdateProgress(float64(time.Since(start)) / float64(s.Duration) * 100)
		}
	}
}
