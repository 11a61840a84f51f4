package scripting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/robertkrimen/otto"

	"flowrunner/internal/flow"
	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// HistoryTypeID is the type recorded in execution history for script steps.
const HistoryTypeID = "ScriptNode"

// ErrInterrupted is returned when a running script is canceled.
var ErrInterrupted = errors.New("script interrupted")

var errHalt = errors.New("halt")

// Step executes a flow script.
type Step struct {
	Script *Script
	Model  map[string]any

	mu       sync.Mutex
	vm       *otto.Otto
	canceled bool
}

// NewStep parses code and returns a step bound to the part's model.
func NewStep(name, code string, model map[string]any) (*Step, error) {
	script, err := Parse(name, code)
	if err != nil {
		return nil, err
	}
	return &Step{Script: script, Model: model}, nil
}

func (s *Step) Execute(ctx context.Context, args *steps.Args) (output int, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	s.mu.Lock()
	s.vm = vm
	canceled := s.canceled
	s.mu.Unlock()
	if canceled {
		return -1, ErrInterrupted
	}
	defer func() {
		s.mu.Lock()
		s.vm = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { interrupt(vm) })
	defer stop()

	if err := s.install(vm, args); err != nil {
		return -1, err
	}

	defer func() {
		if caught := recover(); caught != nil {
			if caught == errHalt {
				output, err = -1, ErrInterrupted
				return
			}
			panic(caught)
		}
	}()

	if _, err := vm.Run(s.Script.Code); err != nil {
		return -1, scriptError(args.Logger, err)
	}
	entry, err := vm.Get("Script")
	if err != nil || !entry.IsFunction() {
		return -1, fmt.Errorf("script %s does not define a Script function", s.Script.Name)
	}
	result, err := entry.Call(otto.NullValue(), s.parameters(args)...)
	if err != nil {
		return -1, scriptError(args.Logger, err)
	}
	if result.IsUndefined() || result.IsNull() {
		return -1, fmt.Errorf("script %s returned no output", s.Script.Name)
	}
	n, err := result.ToInteger()
	if err != nil {
		return -1, fmt.Errorf("script %s returned %s, not an output number", s.Script.Name, result.String())
	}
	return int(n), nil
}

// Cancel interrupts the running VM.
func (s *Step) Cancel() error {
	s.mu.Lock()
	s.canceled = true
	vm := s.vm
	s.mu.Unlock()
	if vm != nil {
		interrupt(vm)
	}
	return nil
}

func interrupt(vm *otto.Otto) {
	select {
	case vm.Interrupt <- func() { panic(errHalt) }:
	default:
	}
}

func scriptError(logger *slog.Logger, err error) error {
	var jsErr *otto.Error
	if errors.As(err, &jsErr) {
		logger.Error("Error in script", logging.String("script_error", jsErr.String()))
	}
	return fmt.Errorf("script failed: %w", err)
}

// parameters fills Script() arguments from the model in declaration order.
// Strings have flow variables replaced; absent values are null.
func (s *Step) parameters(args *steps.Args) []any {
	out := make([]any, len(s.Script.Params))
	for i, p := range s.Script.Params {
		value, ok := s.Model[p.Name]
		if !ok {
			out[i] = nil
			continue
		}
		if str, isString := value.(string); isString && strings.TrimSpace(str) != "" {
			if replaced := args.ReplaceVariables(str); replaced != str {
				args.Logger.Info("Variables replaced", logging.String("parameter", p.Name), logging.String("value", replaced))
				value = replaced
			}
		}
		out[i] = value
	}
	return out
}

func (s *Step) install(vm *otto.Otto, args *steps.Args) error {
	logger, err := vm.Object(`({})`)
	if err != nil {
		return err
	}
	for name, level := range map[string]slog.Level{
		"ILog": slog.LevelInfo,
		"DLog": slog.LevelDebug,
		"WLog": slog.LevelWarn,
		"ELog": slog.LevelError,
	} {
		if err := logger.Set(name, logFunc(args.Logger, level)); err != nil {
			return err
		}
	}

	variables := make(map[string]any, len(args.Variables))
	for k, v := range args.Variables {
		variables[k] = v
	}

	fl, err := vm.Object(`({})`)
	if err != nil {
		return err
	}
	props := map[string]any{
		"WorkingFile":  args.WorkingFile(),
		"OriginalFile": args.OriginalFile,
		"TempPath":     args.TempPath,
		"IsDirectory":  args.IsDirectory,
		"SetWorkingFile": func(call otto.FunctionCall) otto.Value {
			path := call.Argument(0).String()
			args.SetWorkingFile(path)
			_ = fl.Set("WorkingFile", args.WorkingFile())
			return otto.UndefinedValue()
		},
		"ReplaceVariables": func(call otto.FunctionCall) otto.Value {
			v, _ := vm.ToValue(args.ReplaceVariables(call.Argument(0).String()))
			return v
		},
		"SetVariable": func(call otto.FunctionCall) otto.Value {
			name := call.Argument(0).String()
			value, _ := call.Argument(1).Export()
			args.SetVariable(name, value)
			return otto.UndefinedValue()
		},
		"UpdatePercent": func(call otto.FunctionCall) otto.Value {
			if p, err := call.Argument(0).ToFloat(); err == nil {
				args.UpdateProgress(p)
			}
			return otto.UndefinedValue()
		},
		"GotoFlow": func(call otto.FunctionCall) otto.Value {
			uid, err := uuid.Parse(call.Argument(0).String())
			if err != nil {
				args.Logger.Error("invalid flow uid passed to GotoFlow", logging.Error(err))
				return otto.FalseValue()
			}
			if err := args.GotoFlow(flow.Reference{UID: uid, Name: call.Argument(1).String()}); err != nil {
				args.Logger.Error("flow redirect refused", logging.Error(err))
				return otto.FalseValue()
			}
			return otto.TrueValue()
		},
	}
	for name, value := range props {
		if err := fl.Set(name, value); err != nil {
			return err
		}
	}

	for name, value := range map[string]any{"Logger": logger, "Variables": variables, "Flow": fl} {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func logFunc(logger *slog.Logger, level slog.Level) func(otto.FunctionCall) otto.Value {
	return func(call otto.FunctionCall) otto.Value {
		parts := make([]string, len(call.ArgumentList))
		for i, arg := range call.ArgumentList {
			parts[i] = arg.String()
		}
		logger.Log(context.Background(), level, strings.Join(parts, " "))
		return otto.UndefinedValue()
	}
}

var _ steps.Canceler = (*Step)(nil)
