package builtin

import (
	"context"
	"strings"

	"flowrunner/internal/steps"
)

// FailureReasonVariable holds the message of the last Fail step.
const FailureReasonVariable = "FailureReason"

// Fail marks the file as failed.
type Fail struct {
	Reason string
}

func failDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeFail,
		Description: "Fails the flow",
		Inputs:      1,
		Outputs:     0,
		New:         func() steps.Step { return &Fail{} },
		Fields: []steps.Field{
			steps.StringField("Reason", func(s *Fail, v string) { s.Reason = v }),
		},
	}
}

func (s *Fail) Execute(_ context.Context, args *steps.Args) (int, error) {
	reason := strings.TrimSpace(args.ReplaceVariables(s.Reason))
	if reason == "" {
		reason = "Failing flow"
	}
	args.SetVariable(FailureReasonVariable, reason)
	args.Logger.Error(reason)
	return -1, nil
}
