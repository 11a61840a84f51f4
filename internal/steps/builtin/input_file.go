package builtin

import (
	"context"
	"fmt"

	"flowrunner/internal/fileutil"
	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// InputFile is the entry step of a file flow. It confirms the working file
// is present and records its size.
type InputFile struct{}

func inputFileDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeInputFile,
		Description: "Flow entry point for a library file",
		Inputs:      0,
		Outputs:     1,
		New:         func() steps.Step { return &InputFile{} },
	}
}

func (s *InputFile) Execute(_ context.Context, args *steps.Args) (int, error) {
	path := args.WorkingFile()
	exists, isDir := fileutil.Exists(path)
	if !exists {
		return -1, fmt.Errorf("input file does not exist: %s", path)
	}
	if isDir != args.IsDirectory {
		return -1, fmt.Errorf("input %s is not a %s", path, kindLabel(args.IsDirectory))
	}
	if !isDir {
		if size, err := fileutil.Size(path); err == nil {
			args.SetVariable("file.Size", size)
			args.Logger.Info("input file", logging.String("path", path), logging.Int64("size_bytes", size))
		}
	}
	return 1, nil
}

func kindLabel(dir bool) string {
	if dir {
		return "directory"
	}
	return "file"
}
