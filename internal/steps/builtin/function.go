package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"

	"flowrunner/internal/fileutil"
	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// Function evaluates an expression and uses its result to pick an output.
// An integer result is the output index; a boolean maps true to 1 and false
// to 2.
type Function struct {
	Expression string
	Outputs    int
}

func functionDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeFunction,
		Description: "Evaluates an expression to choose an output",
		Inputs:      1,
		Outputs:     2,
		New:         func() steps.Step { return &Function{Outputs: 2} },
		Fields: []steps.Field{
			steps.StringField("Code", func(s *Function, v string) { s.Expression = v }),
			steps.IntField("Outputs", func(s *Function, v int) { s.Outputs = v }),
		},
	}
}

func (s *Function) Execute(_ context.Context, args *steps.Args) (int, error) {
	source := strings.TrimSpace(s.Expression)
	if source == "" {
		return -1, errors.New("no expression provided")
	}
	env := expressionEnv(args)
	program, err := expr.Compile(source, expr.Env(env), expr.AsAny())
	if err != nil {
		return -1, fmt.Errorf("compile expression: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return -1, fmt.Errorf("evaluate expression: %w", err)
	}
	output, err := outputOf(result)
	if err != nil {
		return -1, err
	}
	if output < -1 || (s.Outputs > 0 && output > s.Outputs) {
		return -1, fmt.Errorf("expression returned output %d outside 1..%d", output, s.Outputs)
	}
	args.Logger.Debug("expression evaluated", logging.Int("output", output))
	return output, nil
}

// expressionEnv exposes variables to expressions. Dotted names are reachable
// through Variables["file.Name"] or get("file.Name"); plain names are also
// top-level identifiers.
func expressionEnv(args *steps.Args) map[string]any {
	env := make(map[string]any, len(args.Variables)+6)
	for name, value := range args.Variables {
		if !strings.Contains(name, ".") {
			env[name] = value
		}
	}
	env["Variables"] = args.Variables
	env["workingFile"] = args.WorkingFile()
	env["originalFile"] = args.OriginalFile
	env["get"] = func(name string) any {
		v, _ := args.Variable(name)
		return v
	}
	env["exists"] = func(path string) bool {
		ok, _ := fileutil.Exists(path)
		return ok
	}
	env["size"] = func(path string) int64 {
		n, _ := fileutil.Size(path)
		return n
	}
	return env
}

func outputOf(result any) (int, error) {
	switch v := result.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 2, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return -1, fmt.Errorf("expression returned non-integer %v", v)
		}
		return int(v), nil
	}
	return -1, fmt.Errorf("expression must return a number or bool, got %T", result)
}
