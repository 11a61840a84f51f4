package outbox

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"flowrunner/internal/jobstate"
	"flowrunner/internal/logging"
)

// Sender delivers completion reports.
type Sender interface {
	Complete(ctx context.Context, snap jobstate.Snapshot) error
	SaveFullLog(ctx context.Context, runnerUID, fileUID uuid.UUID, log string) error
}

// ReplayResult summarizes a replay pass.
type ReplayResult struct {
	Delivered int
	Failed    int
}

// Replay sends every stored report. Delivered reports are removed; failures
// are recorded and left for the next pass.
func (s *Store) Replay(ctx context.Context, sender Sender, logger *slog.Logger) (ReplayResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	entries, err := s.List(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	var result ReplayResult
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		entryLogger := logger.With(
			logging.Int64("report_id", entry.ID),
			logging.String(logging.FieldFileID, entry.FileUID.String()),
		)
		snap, err := entry.Snapshot()
		if err == nil {
			if entry.Log != "" {
				if logErr := sender.SaveFullLog(ctx, entry.RunnerUID, entry.FileUID, entry.Log); logErr != nil {
					entryLogger.Warn("full log upload failed", logging.Error(logErr))
				}
			}
			err = sender.Complete(ctx, snap)
		}
		if err != nil {
			result.Failed++
			entryLogger.Warn("report delivery failed", logging.Error(err))
			if markErr := s.MarkAttempt(ctx, entry.ID, err); markErr != nil {
				return result, markErr
			}
			continue
		}
		if err := s.Delete(ctx, entry.ID); err != nil {
			return result, err
		}
		result.Delivered++
		entryLogger.Info("report delivered", logging.String("file", entry.FileName))
	}
	return result, nil
}
