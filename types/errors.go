package types

import "fmt"

// FetchError reports a failed category listing or thread fetch
type FetchError struct {
	Op       string // "list" or "thread"
	ThreadID ThreadID
	Err      error
}

func (e *FetchError) Error() string {
	if e.ThreadID != "" {
		return fmt.Sprintf("fetch %s %s: %v", e.Op, e.ThreadID, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GenerationError reports a failed or empty generation
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate reply: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PublishError reports a rejected reply or a transport failure while posting.
// StatusCode is zero when no response was received.
type PublishError struct {
	ThreadID   ThreadID
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish to %s (status %d): %v", e.ThreadID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("publish to %s: %v", e.ThreadID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
