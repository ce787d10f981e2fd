package batchgate

import "time"

// Meter observes engine events for monitoring/logging.
type Meter interface {
	// OnAdmit is called once per submission with the admission outcome.
	OnAdmit(event AdmitEvent)

	// OnFlush is called when a batch window is handed to the processor.
	OnFlush(event FlushEvent)

	// OnResult is called when an executed request settles.
	OnResult(event ResultEvent)

	// OnQuota is called after each consumption with the new quota state.
	OnQuota(event QuotaEvent)

	// OnSweep is called when a cache sweep removes expired entries.
	OnSweep(event SweepEvent)
}

// AdmitOutcome is the terminal admission state of a submission.
type AdmitOutcome string

const (
	AdmitRejectedQuota AdmitOutcome = "rejected_quota"
	AdmitRejectedRate  AdmitOutcome = "rejected_rate"
	AdmitInvalid       AdmitOutcome = "invalid"
	AdmitShutdown      AdmitOutcome = "shutdown"
	AdmitCacheHit      AdmitOutcome = "cache_hit"
	AdmitJoined        AdmitOutcome = "joined"
	AdmitImmediate     AdmitOutcome = "immediate"
	AdmitBatched       AdmitOutcome = "batched"
)

// AdmitEvent describes the admission decision for one submission.
type AdmitEvent struct {
	SubmissionID string
	TaskType     string
	Outcome      AdmitOutcome
	Err          error // set for rejections
}

// FlushEvent describes a batch window handed to the processor.
type FlushEvent struct {
	BatchID string
	Size    int
	Trigger FlushTrigger
}

// ResultEvent describes the outcome of an executed request.
type ResultEvent struct {
	SubmissionID string
	Fingerprint  string
	TaskType     string
	Mode         Mode
	BatchID      string // empty for immediate executions
	Success      bool
	Tokens       int64
	Duration     time.Duration
	Err          error
}

// QuotaEvent carries the quota state after a consumption.
type QuotaEvent struct {
	Stats QuotaStats
}

// SweepEvent describes a cache cleanup pass that removed entries.
type SweepEvent struct {
	Removed   int
	Remaining int
}
