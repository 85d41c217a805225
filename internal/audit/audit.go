// Package audit keeps a queryable trail of processed turns: who asked for
// what, whether it worked, and which parameter changes it made.
package audit

import (
	"context"
	"time"
)

// Status is the outcome of a turn.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is a single audit trail record.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"user_id"`
	AssistantKind string    `json:"assistant_kind"`
	Mode          string    `json:"mode"`
	Status        Status    `json:"status"`
	UserInput     string    `json:"user_input"`
	Error         string    `json:"error,omitempty"`
	Changes       []string  `json:"changes"`
	DurationMS    int64     `json:"duration_ms"`
}

// Recorder accepts audit entries. *Store implements it.
type Recorder interface {
	Log(ctx context.Context, entry Entry) error
}
