package batchgate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns the canonical content hash of a request: the SHA-256
// of its canonical serialization, hex encoded. Two requests with the same
// keys and values fingerprint identically regardless of construction order.
func Fingerprint(req Request) (string, error) {
	payload, err := canonicalBytes(req)
	if err != nil {
		return "", err
	}
	return hashPayload(payload), nil
}

// canonicalBytes serializes a request deterministically. encoding/json
// writes map keys in sorted order at every nesting depth with fixed
// separators, which is exactly the canonical form we need. Array order is
// preserved: lists are ordered data, so [1,2] and [2,1] are distinct.
func canonicalBytes(req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &FingerprintError{Err: err}
	}
	return payload, nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
