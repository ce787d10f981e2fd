package batchgate

import (
	"context"
	"encoding/json"
)

// Request is a single unit of work destined for the backend. Payloads are
// free-form JSON-style documents; the engine never interprets them beyond
// the well-known fields below.
type Request map[string]any

// Result is the backend's answer for a single request.
type Result map[string]any

// Processor executes a group of admitted requests against the backend.
// results must be positional: results[i] answers reqs[i]. A non-nil error
// fails the whole group; a nil slot fails only that slot.
type Processor func(ctx context.Context, reqs []Request) ([]Result, error)

// Mode describes how a submission was executed.
type Mode int

const (
	ModeImmediate Mode = iota
	ModeBatched
)

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// DefaultTaskType is assumed when a request carries no task type field.
const DefaultTaskType = "default"

// TaskType returns the request's declared task type, checking "task_type"
// then "type". Requests without one fall under DefaultTaskType.
func (r Request) TaskType() string {
	for _, key := range []string{"task_type", "type"} {
		if s, ok := r[key].(string); ok && s != "" {
			return s
		}
	}
	return DefaultTaskType
}

// Priority returns the request's numeric "priority" field, or 0 when absent
// or non-numeric. Decoded JSON carries numbers as float64; literals built in
// Go tend to be int.
func (r Request) Priority() int {
	switch v := r["priority"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}
