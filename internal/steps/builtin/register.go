package builtin

import (
	"flowrunner/internal/config"
	"flowrunner/internal/notifications"
	"flowrunner/internal/steps"
)

// BundleName identifies the compiled-in bundle in log headers and manifests.
const BundleName = "core"

// Type identifiers of the builtin steps.
const (
	TypeInputFile   = "core.InputFile"
	TypeLog         = "core.Log"
	TypeCopyFile    = "core.CopyFile"
	TypeFunction    = "core.Function"
	TypeCommand     = "core.Command"
	TypeGotoFlow    = "core.GotoFlow"
	TypeFail        = "core.Fail"
	TypeWait        = "core.Wait"
	TypeNotify      = "core.Notify"
	TypeVideoEncode = "core.VideoEncode"
)

// Dependencies are the external services builtin steps use.
type Dependencies struct {
	Notifier notifications.Service
	Encoder  Encoder
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Notifier == nil {
		d.Notifier = notifications.NewService(config.Notifications{})
	}
	if d.Encoder == nil {
		d.Encoder = draptoEncoder{}
	}
	return d
}

// Register adds the builtin definitions to r.
func Register(r *steps.Registry, deps Dependencies) error {
	for _, def := range Definitions(deps) {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Definitions returns the builtin step definitions.
func Definitions(deps Dependencies) []steps.Definition {
	deps = deps.withDefaults()
	return []steps.Definition{
		inputFileDefinition(),
		logDefinition(),
		copyFileDefinition(),
		functionDefinition(),
		CommandDefinition(TypeCommand, "", nil),
		gotoFlowDefinition(),
		failDefinition(),
		waitDefinition(),
		notifyDefinition(deps.Notifier),
		videoEncodeDefinition(deps.Encoder),
	}
}
