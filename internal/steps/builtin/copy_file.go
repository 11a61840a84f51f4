package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flowrunner/internal/fileutil"
	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// CopyFile copies the working file to a destination directory or path.
// Output 1 means copied; output 2 means the destination existed and
// overwriting was disabled.
type CopyFile struct {
	Destination       string
	Overwrite         bool
	Verify            bool
	UpdateWorkingFile bool
}

func copyFileDefinition() steps.Definition {
	return steps.Definition{
		TypeID:      TypeCopyFile,
		Description: "Copies the working file",
		Inputs:      1,
		Outputs:     2,
		New:         func() steps.Step { return &CopyFile{} },
		Fields: []steps.Field{
			steps.StringField("DestinationPath", func(s *CopyFile, v string) { s.Destination = v }),
			steps.BoolField("Overwrite", func(s *CopyFile, v bool) { s.Overwrite = v }),
			steps.BoolField("Verify", func(s *CopyFile, v bool) { s.Verify = v }),
			steps.BoolField("UpdateWorkingFile", func(s *CopyFile, v bool) { s.UpdateWorkingFile = v }),
		},
	}
}

func (s *CopyFile) Execute(_ context.Context, args *steps.Args) (int, error) {
	if args.IsDirectory {
		return -1, errors.New("copy file cannot copy a directory input")
	}
	dest := strings.TrimSpace(args.MapPath(args.ReplaceVariables(s.Destination)))
	if dest == "" {
		return -1, errors.New("destination path not set")
	}
	src := args.WorkingFile()
	if exists, isDir := fileutil.Exists(dest); (exists && isDir) || strings.HasSuffix(dest, string(os.PathSeparator)) {
		dest = filepath.Join(dest, filepath.Base(src))
	}
	if exists, _ := fileutil.Exists(dest); exists && !s.Overwrite {
		args.Logger.Info("destination exists, not overwriting", logging.String("destination", dest))
		return 2, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return -1, fmt.Errorf("create destination directory: %w", err)
	}

	copyFn := fileutil.CopyFile
	if s.Verify {
		copyFn = fileutil.CopyFileVerified
	}
	args.Logger.Info("copying file", logging.String("source", src), logging.String("destination", dest))
	if err := copyFn(src, dest); err != nil {
		return -1, err
	}
	if s.UpdateWorkingFile {
		args.SetWorkingFile(dest)
	}
	return 1, nil
}
