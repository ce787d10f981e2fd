package batchgate

// EligibilityPolicy decides whether an admitted request may wait in a
// batch window or must execute immediately.
type EligibilityPolicy interface {
	// Eligible reports whether the request may be batched. payloadBytes is
	// the size of the request's canonical serialization.
	Eligible(req Request, payloadBytes int) bool
}
