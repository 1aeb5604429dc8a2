package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the caller-facing taxonomy. Callers match these with
// errors.Is; the structured failures below are matched with errors.As.
var (
	// ErrInvalidURL means the input was not a well-formed absolute URL.
	// Caller error, never retried.
	ErrInvalidURL = errors.New("invalid product URL")

	// ErrEmbeddingUnavailable means the embedding provider is down. The
	// caller degrades to structured-facts-only output; this is recoverable.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrLockTimeout means the caller gave up waiting on an in-flight
	// compilation. The compile itself keeps running; retrying GetOrCompile
	// re-checks cache state.
	ErrLockTimeout = errors.New("timed out waiting for in-flight compilation")
)

// CompilationFailedError reports a crawler or provider failure during
// compilation. No partial row is committed when this is returned.
type CompilationFailedError struct {
	URL    string
	Reason string
	Err    error
}

func (e *CompilationFailedError) Error() string {
	return fmt.Sprintf("compilation failed for %s: %s", e.URL, e.Reason)
}

func (e *CompilationFailedError) Unwrap() error { return e.Err }

// DimensionMismatchError is a fatal configuration error: the embedding
// engine's dimensionality does not match the vector store's. Vectors are
// never silently truncated or padded.
type DimensionMismatchError struct {
	StoreDims  int
	EngineDims int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store expects %d, engine produces %d", e.StoreDims, e.EngineDims)
}
