package meter

import (
	"log/slog"

	"github.com/ineyio/batchgate"
)

// LogMeter logs engine events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ batchgate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmit(e batchgate.AdmitEvent) {
	if e.Err != nil {
		m.Logger.Warn("admit_rejected",
			"submission", e.SubmissionID,
			"task", e.TaskType,
			"outcome", string(e.Outcome),
			"error", e.Err,
		)
		return
	}
	m.Logger.Debug("admit",
		"submission", e.SubmissionID,
		"task", e.TaskType,
		"outcome", string(e.Outcome),
	)
}

func (m *LogMeter) OnFlush(e batchgate.FlushEvent) {
	m.Logger.Info("flush",
		"batch", e.BatchID,
		"size", e.Size,
		"trigger", e.Trigger.String(),
	)
}

func (m *LogMeter) OnResult(e batchgate.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"submission", e.SubmissionID,
			"task", e.TaskType,
			"mode", e.Mode.String(),
			"batch", e.BatchID,
			"tokens", e.Tokens,
			"duration_ms", e.Duration.Milliseconds(),
		)
	} else {
		m.Logger.Warn("result_error",
			"submission", e.SubmissionID,
			"task", e.TaskType,
			"mode", e.Mode.String(),
			"batch", e.BatchID,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
	}
}

func (m *LogMeter) OnQuota(e batchgate.QuotaEvent) {
	m.Logger.Debug("quota",
		"used", e.Stats.Used,
		"limit", e.Stats.Limit,
		"percent", e.Stats.Percentage,
		"exhausted", e.Stats.Exhausted,
	)
}

func (m *LogMeter) OnSweep(e batchgate.SweepEvent) {
	m.Logger.Debug("cache_sweep",
		"removed", e.Removed,
		"remaining", e.Remaining,
	)
}
