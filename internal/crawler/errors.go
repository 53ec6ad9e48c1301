package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchExhausted matches a scrape that failed on every attempt. It
	// aborts the run.
	ErrFetchExhausted = errors.New("fetch retries exhausted")
	// ErrTitleLookupFailed marks a best-effort title lookup that failed. The
	// driver logs it and falls back to a placeholder entry.
	ErrTitleLookupFailed = errors.New("title lookup failed")
	// ErrDepthExceeded describes a queue item beyond the depth budget. It is a
	// drop reason, never returned from Run.
	ErrDepthExceeded = errors.New("depth limit exceeded")
	// ErrAlreadyVisited describes a queue item already processed this run.
	ErrAlreadyVisited = errors.New("already visited")
)

// FetchError reports the law whose scrape could not be completed.
type FetchError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch law %s (%d attempts): %v", e.ID, e.Attempts, e.Err)
}

// Unwrap exposes the last scrape failure.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches ErrFetchExhausted.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchExhausted
}
