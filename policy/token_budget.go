package policy

import "github.com/ineyio/batchgate"

// TokenBudget batches requests whose estimated token cost stays within a
// budget; costlier requests execute immediately. Cost is estimated with
// batchgate.EstimateTokens, so it tracks payload size rather than history.
type TokenBudget struct {
	// MaxEstimatedTokens is the largest estimate still eligible for
	// batching.
	MaxEstimatedTokens int64
}

var _ batchgate.EligibilityPolicy = (*TokenBudget)(nil)

func (p *TokenBudget) Eligible(req batchgate.Request, _ int) bool {
	return batchgate.EstimateTokens(req) <= p.MaxEstimatedTokens
}
