package source

import (
	"errors"
	"fmt"
)

var (
	// ErrStructure means the listing page no longer contains the expected
	// container elements, usually after an upstream redesign.
	ErrStructure = errors.New("expected page structure not found")

	ErrEmptyTitle  = errors.New("empty title")
	ErrRelativeURL = errors.New("url is not absolute http(s)")
	ErrNoDate      = errors.New("no publication date")
)

// FetchError reports that a source could not produce a listing at all.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransientFetchError is a network failure or a retryable 5xx status.
// StatusCode is zero for transport errors.
type TransientFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient: %s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transient: %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ParseItemError describes a single listing entry that was skipped.
// Index is the position of the entry in the listing, or -1 when unknown.
type ParseItemError struct {
	Source string
	Index  int
	Field  string
	Err    error
}

func (e *ParseItemError) Error() string {
	return fmt.Sprintf("%s: item %d: %s: %v", e.Source, e.Index, e.Field, e.Err)
}

func (e *ParseItemError) Unwrap() error { return e.Err }

// StatusError is a non-retryable, non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
