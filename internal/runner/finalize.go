package runner

import (
	"context"
	"maps"
	"runtime"
	"strconv"
	"strings"

	"flowrunner/internal/fileutil"
	"flowrunner/internal/library"
	"flowrunner/internal/logging"
)

// writeHeader logs the version, platform, file, flow and plugin bundles at
// the top of the job log.
func (r *Runner) writeHeader() {
	version := r.version
	if version == "" {
		version = "dev"
	}
	r.logger.Info("Version: " + version)
	r.logger.Info("Platform: " + platform(r.docker, runtime.GOOS, runtime.GOARCH))
	r.logger.Info("File: " + r.args.WorkingFile())
	r.logger.Info("Executing Flow: " + r.flow.Name)
	for _, b := range r.bundles {
		v := b.Version
		if v == "" {
			v = "unknown"
		}
		r.logger.Info("Plugin:  " + b.Name + " version " + v)
	}
}

func platform(docker bool, goos, goarch string) string {
	var name string
	switch {
	case docker:
		name = "Docker"
	case goos == "linux":
		name = "Linux"
	case goos == "windows":
		name = "Windows"
	case goos == "darwin":
		name = "Mac"
	default:
		name = goos
	}
	if strings.HasPrefix(goarch, "arm") {
		name += " (ARM)"
	}
	return name
}

// calculateFinalSize records the output size, fingerprint and coordinator
// path of the current working file.
func (r *Runner) calculateFinalSize() {
	working := r.info.WorkingFile()
	var (
		size        int64
		sizeErr     error
		fingerprint string
	)
	if r.info.IsDirectory {
		size, sizeErr = fileutil.DirSize(working)
	} else {
		size, sizeErr = fileutil.Size(working)
		if r.info.Fingerprinting && sizeErr == nil {
			fp, err := fileutil.Fingerprint(working)
			if err != nil {
				r.logger.Info("Error with fingerprinting: " + err.Error())
			} else {
				fingerprint = fp
				r.logger.Info("Final Fingerprint: " + fp)
			}
		}
	}
	outputPath := r.node.UnMap(working)

	var file library.File
	r.info.UpdateFile(func(f *library.File) {
		if sizeErr == nil {
			f.FinalSize = size
		}
		if !r.info.IsDirectory {
			f.Fingerprint = fingerprint
		}
		f.OutputPath = outputPath
		file = *f
	})
	r.logger.Info("Original Size: " + strconv.FormatInt(file.OriginalSize, 10))
	r.logger.Info("Final Size: " + strconv.FormatInt(file.FinalSize, 10))
	r.logger.Info("Output Path: " + file.OutputPath)
	r.logger.Info("Final Status: " + file.Status.String())
}

// finalize uploads the job log and tells the coordinator the job is done.
// A report that cannot be delivered is kept in the outbox.
func (r *Runner) finalize(ctx context.Context) {
	var fullLog string
	if r.flowLog != nil {
		fullLog = r.flowLog.String()
	}

	working := r.info.WorkingFile()
	var finalFingerprint string
	if exists, isDir := fileutil.Exists(working); exists && !isDir {
		if fp, err := fileutil.Fingerprint(working); err == nil {
			finalFingerprint = fp
		}
	}
	r.info.UpdateFile(func(f *library.File) {
		f.FinalFingerprint = finalFingerprint
		if r.args != nil && len(r.args.Metadata) > 0 {
			f.FinalMetadata = maps.Clone(r.args.Metadata)
		}
	})

	snap := r.info.Snapshot()
	if fullLog != "" {
		if err := r.reporter.SaveFullLog(ctx, snap.RunnerUID, snap.LibraryFile.UID, fullLog); err != nil {
			r.logger.Warn("failed to upload full log", logging.Error(err))
		}
	}

	err := retry(ctx, r.timing.CompletionRetryInterval, r.timing.CompletionRetryWindow, r.now, func() error {
		r.calculateFinalSize()
		snap = r.info.Snapshot()
		return r.reporter.Complete(ctx, snap)
	})
	if err == nil {
		return
	}
	logging.ErrorWithContext(r.logger, "failed to inform coordinator of flow completion", "complete_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run `flowrunner outbox replay` once the coordinator is reachable"))
	if r.outbox == nil {
		return
	}
	id, saveErr := r.outbox.Save(ctx, snap, fullLog)
	if saveErr != nil {
		r.logger.Error("failed to store completion report", logging.Error(saveErr))
		return
	}
	r.logger.Info("completion report stored in outbox", logging.Int64("report_id", id))
}
