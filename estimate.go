package batchgate

// EstimateTokens provides a rough token count estimate for a request.
// Uses the approximation: ~4 bytes of canonical payload per token + base
// overhead. Useful for sizing default_token_estimate and for cost-based
// eligibility policies; a request that cannot be serialized estimates to 0.
func EstimateTokens(req Request) int64 {
	payload, err := canonicalBytes(req)
	if err != nil {
		return 0
	}
	// ~4 bytes per token
	total := int64(len(payload)) / 4
	// base overhead for the request
	total += 3
	return total
}
