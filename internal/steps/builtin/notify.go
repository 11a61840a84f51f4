package builtin

import (
	"context"
	"path/filepath"

	"flowrunner/internal/logging"
	"flowrunner/internal/notifications"
	"flowrunner/internal/steps"
)

// Notify publishes a push notification. Output 1 means sent; output 2
// means delivery failed.
type Notify struct {
	Event   string
	Title   string
	Message string

	notifier notifications.Service
}

var notifyEvents = []string{"Message", "Completed", "Failed"}

func notifyDefinition(notifier notifications.Service) steps.Definition {
	return steps.Definition{
		TypeID:      TypeNotify,
		Description: "Sends a push notification",
		Inputs:      1,
		Outputs:     2,
		New:         func() steps.Step { return &Notify{Event: "Message", notifier: notifier} },
		Fields: []steps.Field{
			steps.EnumField("Event", notifyEvents, func(s *Notify, v string) { s.Event = v }),
			steps.StringField("Title", func(s *Notify, v string) { s.Title = v }),
			steps.StringField("Message", func(s *Notify, v string) { s.Message = v }),
		},
	}
}

func (s *Notify) Execute(ctx context.Context, args *steps.Args) (int, error) {
	payload := notifications.Payload{
		"title":   args.ReplaceVariables(s.Title),
		"message": args.ReplaceVariables(s.Message),
		"file":    filepath.Base(args.OriginalFile),
		"flow":    variableText(args, "FlowName"),
		"step":    variableText(args, "FailedNode"),
		"error":   variableText(args, FailureReasonVariable),
	}
	event := notifications.EventMessage
	switch s.Event {
	case "Completed":
		event = notifications.EventFlowCompleted
	case "Failed":
		event = notifications.EventFlowFailed
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(args.Logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic in the runner config"),
		)
		return 2, nil
	}
	return 1, nil
}

func variableText(args *steps.Args, name string) string {
	v, ok := args.Variable(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return args.ReplaceVariables("{" + name + "}")
}
