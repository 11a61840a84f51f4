package steps

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"flowrunner/internal/flow"
	"flowrunner/internal/logging"
)

// Hooks are the engine callbacks a step may invoke.
type Hooks struct {
	// Progress receives the step's completion percentage (0-100).
	Progress func(percent float64)
	// GotoFlow requests that the engine switch to another flow once the
	// current step returns.
	GotoFlow func(ref flow.Reference) error
	// WorkingFileChanged is told about every new working file.
	WorkingFileChanged func(path string)
	// PluginSettings returns the stored JSON settings for a plugin.
	PluginSettings func(pluginID string) (string, bool)
	// MapPath converts a coordinator path to a local one; UnmapPath reverses it.
	MapPath   func(string) string
	UnmapPath func(string) string
}

// Args is the per-job context handed to every step.
type Args struct {
	Logger       *slog.Logger
	FileUID      uuid.UUID
	LibraryPath  string
	TempPath     string
	RelativeFile string
	OriginalFile string
	IsDirectory  bool
	Variables    map[string]any
	Metadata     map[string]any

	workingFile string
	hooks       Hooks
}

// NewArgs constructs Args for a job whose current file is workingFile.
func NewArgs(logger *slog.Logger, workingFile string, hooks Hooks) *Args {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Args{
		Logger:       logger,
		OriginalFile: workingFile,
		Variables:    make(map[string]any),
		Metadata:     make(map[string]any),
		hooks:        hooks,
	}
	a.setWorkingFileVariables(workingFile)
	a.workingFile = workingFile
	return a
}

// WorkingFile returns the path steps should operate on.
func (a *Args) WorkingFile() string {
	return a.workingFile
}

// SetWorkingFile replaces the working file after a step produced a new output.
func (a *Args) SetWorkingFile(path string) {
	if path == "" || path == a.workingFile {
		return
	}
	a.Logger.Info("Working file changed", logging.String("from", a.workingFile), logging.String("to", path))
	a.workingFile = path
	a.setWorkingFileVariables(path)
	if a.hooks.WorkingFileChanged != nil {
		a.hooks.WorkingFileChanged(path)
	}
}

func (a *Args) setWorkingFileVariables(path string) {
	ext := filepath.Ext(path)
	a.Variables["file.FullName"] = path
	a.Variables["file.Name"] = filepath.Base(path)
	a.Variables["file.NameNoExtension"] = strings.TrimSuffix(filepath.Base(path), ext)
	a.Variables["file.Extension"] = ext
	a.Variables["folder.FullName"] = filepath.Dir(path)
	a.Variables["folder.Name"] = filepath.Base(filepath.Dir(path))
}

// UpdateProgress reports the step's completion percentage.
func (a *Args) UpdateProgress(percent float64) {
	if a.hooks.Progress != nil {
		a.hooks.Progress(min(max(percent, 0), 100))
	}
}

// GotoFlow asks the engine to continue in another flow. It returns an error
// when the redirect is refused; steps should return that error.
func (a *Args) GotoFlow(ref flow.Reference) error {
	if a.hooks.GotoFlow == nil {
		return fmt.Errorf("flow redirects are not available")
	}
	return a.hooks.GotoFlow(ref)
}

// PluginSettings returns the JSON settings stored for pluginID.
func (a *Args) PluginSettings(pluginID string) (string, bool) {
	if a.hooks.PluginSettings == nil {
		return "", false
	}
	return a.hooks.PluginSettings(pluginID)
}

// MapPath converts a coordinator path to this node's local path.
func (a *Args) MapPath(path string) string {
	if a.hooks.MapPath == nil {
		return path
	}
	return a.hooks.MapPath(path)
}

// UnmapPath converts a local path to the coordinator's view.
func (a *Args) UnmapPath(path string) string {
	if a.hooks.UnmapPath == nil {
		return path
	}
	return a.hooks.UnmapPath(path)
}

// Variable returns a variable value.
func (a *Args) Variable(name string) (any, bool) {
	v, ok := a.Variables[name]
	return v, ok
}

// SetVariable stores a variable for later steps.
func (a *Args) SetVariable(name string, value any) {
	a.Variables[name] = value
}

var variablePattern = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// ReplaceVariables substitutes {name} placeholders with variable values.
// Unknown names are left untouched.
func (a *Args) ReplaceVariables(input string) string {
	if !strings.Contains(input, "{") {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if name == "workingFile" {
			return a.workingFile
		}
		if v, ok := a.Variables[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return match
	})
}
