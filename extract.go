package batchgate

import "encoding/json"

// TokenExtractor pulls the actual token usage out of a processor result.
// It returns false when the result carries no usable count, in which case
// the coordinator falls back to the pre-call estimate.
type TokenExtractor func(res Result) (int64, bool)

// usageFields are checked in order by DefaultTokenExtractor.
var usageFields = []string{"tokens_used", "token_count", "usage_tokens"}

// DefaultTokenExtractor understands the usage fields emitted by common
// completion backends: tokens_used, token_count, usage_tokens, and the
// nested usage.total_tokens shape.
func DefaultTokenExtractor(res Result) (int64, bool) {
	for _, key := range usageFields {
		if n, ok := asTokenCount(res[key]); ok {
			return n, true
		}
	}
	switch usage := res["usage"].(type) {
	case map[string]any:
		return asTokenCount(usage["total_tokens"])
	case Result:
		return asTokenCount(usage["total_tokens"])
	}
	return 0, false
}

// asTokenCount coerces the numeric types a result map can plausibly hold.
// Negative counts are treated as absent.
func asTokenCount(v any) (int64, bool) {
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int64:
		n = t
	case float64:
		n = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	if n < 0 {
		return 0, false
	}
	return n, true
}
