// Package scanlog journals one-shot query results.
//
// Every manual or autonomous query produces an [Entry]. The journal is
// optional: a [Store] may keep entries in memory ([MemStore]) or in
// PostgreSQL (package postgres). Writing an entry is best-effort and never
// blocks a spoken result.
package scanlog

import (
	"context"
	"time"
)

// Outcome values recorded in [Entry.Outcome].
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Entry is one finished one-shot query.
type Entry struct {
	// SessionID identifies the assistant session that issued the query.
	SessionID string `json:"session_id"`

	// Trigger is "manual" or "auto".
	Trigger string `json:"trigger"`

	// Kind is the query kind: "object", "text", "color" or "scene".
	Kind string `json:"kind"`

	// Provider names the query provider configuration that handled it.
	Provider string `json:"provider"`

	// At is when the query was issued.
	At time.Time `json:"at"`

	// Latency is the time the provider took to answer.
	Latency time.Duration `json:"latency_ns"`

	// Outcome is one of [OutcomeOK], [OutcomeEmpty] or [OutcomeError].
	Outcome string `json:"outcome"`

	// Text is the answer text, empty on error.
	Text string `json:"text,omitempty"`

	// Error is the error message, empty on success.
	Error string `json:"error,omitempty"`
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	// Record appends e to the journal.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first. limit <= 0 means
	// no limit.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
