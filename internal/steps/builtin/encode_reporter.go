package builtin

import (
	"fmt"
	"strings"

	draptolib "github.com/five82/drapto"

	"flowrunner/internal/logging"
	"flowrunner/internal/steps"
)

// encodeReporter forwards drapto progress to the step's progress hook and
// the flow log.
type encodeReporter struct {
	args    *steps.Args
	sampler *logging.ProgressSampler
	failed  *draptolib.ReporterError
}

func newEncodeReporter(args *steps.Args) *encodeReporter {
	return &encodeReporter{args: args, sampler: logging.NewProgressSampler(5)}
}

func (r *encodeReporter) Hardware(s draptolib.HardwareSummary) {
	if strings.TrimSpace(s.Hostname) == "" {
		return
	}
	r.args.Logger.Info("drapto hardware info", logging.String("hardware_hostname", strings.TrimSpace(s.Hostname)))
}

func (r *encodeReporter) Initialization(s draptolib.InitializationSummary) {
	r.args.Logger.Info("drapto video info",
		logging.String("video_file", strings.TrimSpace(s.InputFile)),
		logging.String("video_duration", strings.TrimSpace(s.Duration)),
		logging.String("video_resolution", strings.TrimSpace(s.Resolution)),
		logging.String("video_dynamic_range", strings.TrimSpace(s.DynamicRange)),
		logging.String("video_audio", strings.TrimSpace(s.AudioDescription)),
	)
}

func (r *encodeReporter) StageProgress(s draptolib.StageProgress) {
	r.progress(float64(s.Percent), s.Stage)
}

func (r *encodeReporter) CropResult(s draptolib.CropSummary) {
	status := "no crop required"
	if s.Disabled {
		status = "auto-crop disabled"
	} else if s.Required {
		status = "crop applied"
	}
	r.args.Logger.Info("drapto crop detection", logging.String("crop_status", status), logging.String("crop_params", strings.TrimSpace(s.Crop)))
}

func (r *encodeReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.args.Logger.Info("drapto encoding config",
		logging.String("encoding_encoder", strings.TrimSpace(s.Encoder)),
		logging.String("encoding_preset", strings.TrimSpace(s.Preset)),
		logging.String("encoding_quality", strings.TrimSpace(s.Quality)),
		logging.String("encoding_audio_codec", strings.TrimSpace(s.AudioCodec)),
	)
}

func (r *encodeReporter) EncodingStarted(totalFrames uint64) {
	r.sampler.Reset()
	r.args.Logger.Info("drapto encoding started", logging.Int64("encoding_total_frames", int64(totalFrames)))
}

func (r *encodeReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.progress(float64(s.Percent), "encoding")
}

func (r *encodeReporter) ValidationComplete(s draptolib.ValidationSummary) {
	status := "failed"
	if s.Passed {
		status = "passed"
	}
	r.args.Logger.Info("drapto validation", logging.String("validation_status", status))
}

func (r *encodeReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.args.Logger.Info("drapto results",
		logging.String("encoding_result_output", strings.TrimSpace(s.OutputPath)),
		logging.Int64("encoding_result_original_bytes", int64(s.OriginalSize)),
		logging.Int64("encoding_result_encoded_bytes", int64(s.EncodedSize)),
	)
}

func (r *encodeReporter) Warning(message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	r.args.Logger.Warn("drapto warning", logging.String("drapto_warning", strings.TrimSpace(message)))
}

func (r *encodeReporter) Error(e draptolib.ReporterError) {
	r.failed = &e
	r.args.Logger.Error("drapto error",
		logging.String("drapto_error_title", strings.TrimSpace(e.Title)),
		logging.String("drapto_error_message", strings.TrimSpace(e.Message)),
		logging.String("drapto_error_suggestion", strings.TrimSpace(e.Suggestion)),
	)
}

func (r *encodeReporter) OperationComplete(message string) {
	if strings.TrimSpace(message) != "" {
		r.args.Logger.Info("drapto encode complete", logging.String("result", strings.TrimSpace(message)))
	}
}

func (r *encodeReporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *encodeReporter) FileProgress(draptolib.FileProgressContext) {}

func (r *encodeReporter) BatchComplete(draptolib.BatchSummary) {}

func (r *encodeReporter) progress(percent float64, stage string) {
	r.args.UpdateProgress(percent)
	if r.sampler.Sample(stage, percent) {
		r.args.Logger.Info("drapto progress", logging.String("progress_stage", stage), logging.String("progress_percent", fmt.Sprintf("%.1f", percent)))
	}
}

var _ draptolib.Reporter = (*encodeReporter)(nil)
