package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Adapters map them to HTTP statuses and CLI exit codes with
// IsKind, so callers wrap with WrapError instead of comparing messages.
var (
	// ErrInvalidInput rejects malformed input, such as a non-PDF upload or
	// an embedder reply whose vector count does not match the chunks.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoInput means a rebuild found no readable PDF text. The previous
	// generation keeps serving.
	ErrNoInput = errors.New("no input")
	// ErrTemporary marks an upstream failure that may succeed on retry,
	// such as an unreachable Ollama or an open breaker.
	ErrTemporary = errors.New("temporary failure")
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRunNotFound means the catalog has no ingest run recorded yet.
	ErrRunNotFound = errors.New("ingest run not found")
	// ErrRebuildInProgress is returned while another process holds the
	// index lock.
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
	// ErrIndexUnavailable means the current generation could not be
	// resolved or loaded.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrRebuildUnsupported means no event queue is configured, so a
	// rebuild request has nowhere to go.
	ErrRebuildUnsupported = errors.New("rebuild requests are not configured")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
