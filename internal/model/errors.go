package model

import "errors"

// Error kinds for the per-record failure taxonomy. Every kind except
// ErrConfig is recovered locally and surfaced only through counters.
var (
	// ErrParse marks a malformed or unsupported frame. The record is
	// dropped and a counter incremented; nothing propagates.
	ErrParse = errors.New("packet parse failed")

	// ErrClassifierUnavailable marks a missing or corrupt model
	// artifact. The pipeline falls back to the heuristic engine.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrQueueOverflow marks an ingest record dropped because the
	// processing queue was full. Enqueue reports it; the ingest loop
	// only counts it.
	ErrQueueOverflow = errors.New("ingest queue overflow")

	// ErrConfig marks an invalid configuration value. It is the only
	// fatal kind: construction fails fast and startup aborts.
	ErrConfig = errors.New("invalid configuration")

	// ErrPersistence marks a failed alert log write. The alert is still
	// returned to the caller and kept in memory.
	ErrPersistence = errors.New("alert persistence failed")
)
