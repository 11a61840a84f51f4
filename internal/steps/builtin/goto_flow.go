package builtin

import (
	"context"

	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// GotoFlow continues processing in another flow.
type GotoFlow struct {
	Flow flow.Reference
}

func gotoFlowDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeGotoFlow,
		Description: "Continues processing in another flow",
		Inputs:      1,
		Outputs:     0,
		New:         func() steps.Step { return &GotoFlow{} },
		Fields: []steps.Field{
			steps.ReferenceField("Flow", func(s *GotoFlow, v flow.Reference) { s.Flow = v }),
		},
	}
}

func (s *GotoFlow) PreExecute(args *steps.Args) bool {
	if s.Flow.UID == uuid.Nil {
		args.Logger.Error("no flow selected")
		return false
	}
	return true
}

func (s *GotoFlow) Execute(_ context.Context, args *steps.Args) (int, error) {
	args.Logger.Info("switching flow", logging.String("flow", s.Flow.Name), logging.String("flow_uid", s.Flow.UID.String()))
	if err := args.GotoFlow(s.Flow); err != nil {
		return -1, err
	}
	return 1, nil
}
