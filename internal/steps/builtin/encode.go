package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"flowrunner/internal/logging"
	"flowrunner/internal/services"
	"flowrunner/internal/steps"
)

// Encoder turns a source video into an AV1 encode inside outputDir and
// returns the produced path.
type Encoder interface {
	Encode(ctx context.Context, inputPath, outputDir string, reporter draptolib.Reporter) (string, error)
}

type draptoEncoder struct{}

func (draptoEncoder) Encode(ctx context.Context, inputPath, outputDir string, reporter draptolib.Reporter) (string, error) {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", err
	}
	if _, err := encoder.EncodeWithReporter(ctx, inputPath, outputDir, reporter); err != nil {
		return "", err
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(outputDir, stem+".mkv"), nil
}

// VideoEncode encodes the working file with drapto. The encode lands in
// OutputDirectory (the job temp directory when unset) and becomes the new
// working file.
type VideoEncode struct {
	OutputDirectory string

	encoder Encoder
}

func videoEncodeDefinition(encoder Encoder) steps.Definition {
	return steps.Definition{
		TypeID:      TypeVideoEncode,
		Description: "Encodes the working file to AV1",
		Inputs:      1,
		Outputs:     1,
		New:         func() steps.Step { return &VideoEncode{encoder: encoder} },
		Fields: []steps.Field{
			steps.StringField("OutputDirectory", func(s *VideoEncode, v string) { s.OutputDirectory = v }),
		},
	}
}

func (s *VideoEncode) Execute(ctx context.Context, args *steps.Args) (int, error) {
	if args.IsDirectory {
		return -1, errors.New("video encode requires a file input")
	}
	outDir := strings.TrimSpace(args.ReplaceVariables(s.OutputDirectory))
	if outDir == "" {
		outDir = args.TempPath
	}
	if outDir == "" {
		return -1, services.Wrap(services.ErrConfiguration, "encode", "resolve output", "no output directory or temp path", nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return -1, fmt.Errorf("create encode directory: %w", err)
	}

	input := args.WorkingFile()
	args.Logger.Info("launching drapto encode", logging.String("input", input), logging.String("output_dir", outDir))
	rep := newEncodeReporter(args)
	output, err := s.encoder.Encode(ctx, input, outDir, rep)
	if err != nil {
		return -1, services.Wrap(services.ErrStepFailed, "encode", "drapto encode", "encoding failed; inspect the flow log", err)
	}
	if rep.failed != nil {
		args.Logger.Warn("drapto reported an error during a successful encode", logging.String("drapto_error_title", rep.failed.Title))
	}
	args.SetWorkingFile(output)
	return 1, nil
}
