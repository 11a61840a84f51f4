package builtin

import (
	"context"

	"flowrunner/internal/steps"
)

// Log writes a message, with variables replaced, to the flow log.
type Log struct {
	Message string
	Level   string
}

func logDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeLog,
		Description: "Writes a message to the flow log",
		Inputs:      1,
		Outputs:     1,
		New:         func() steps.Step { return &Log{Level: "Info"} },
		Fields: []steps.Field{
			steps.StringField("Message", func(s *Log, v string) { s.Message = v }),
			steps.EnumField("LogType", []string{"Info", "Debug", "Warning", "Error"}, func(s *Log, v string) { s.Level = v }),
		},
	}
}

func (s *Log) Execute(_ context.Context, args *steps.Args) (int, error) {
	msg := args.ReplaceVariables(s.Message)
	switch s.Level {
	case "Debug":
		args.Logger.Debug(msg)
	case "Warning":
		args.Logger.Warn(msg)
	case "Error":
		args.Logger.Error(msg)
	default:
		args.Logger.Info(msg)
	}
	return 1, nil
}
