package policy

import "github.com/ineyio/batchgate"

// BatchAll marks every request batch-eligible. Useful for bulk offline
// workloads where latency does not matter.
type BatchAll struct{}

var _ batchgate.EligibilityPolicy = (*BatchAll)(nil)

func (BatchAll) Eligible(batchgate.Request, int) bool { return true }

// BatchNone routes every request to immediate execution, disabling
// batching without disabling deduplication or quota control.
type BatchNone struct{}

var _ batchgate.EligibilityPolicy = (*BatchNone)(nil)

func (BatchNone) Eligible(batchgate.Request, int) bool { return false }
