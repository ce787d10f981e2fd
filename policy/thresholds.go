package policy

import (
	"slices"

	"github.com/ineyio/batchgate"
)

// Thresholds batches requests that are small, non-critical, and
// low-priority; everything else executes immediately.
type Thresholds struct {
	// MaxPayloadBytes excludes requests whose canonical serialization is
	// larger than this.
	MaxPayloadBytes int

	// CriticalTaskTypes always execute immediately.
	CriticalTaskTypes []string

	// UrgentPriority is the priority at or above which a request skips
	// batching.
	UrgentPriority int
}

var _ batchgate.EligibilityPolicy = (*Thresholds)(nil)

// Eligible reports whether the request may wait in a batch window.
func (p *Thresholds) Eligible(req batchgate.Request, payloadBytes int) bool {
	if payloadBytes > p.MaxPayloadBytes {
		return false
	}
	if slices.Contains(p.CriticalTaskTypes, req.TaskType()) {
		return false
	}
	return req.Priority() < p.UrgentPriority
}
