package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that the requested organization, document or configuration does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by stores when a unique key (the document hash) already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrRateLimited means the per-domain request budget is exhausted; the request was not attempted.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInactive is returned when a crawl is requested for a deactivated organization.
	ErrInactive = errors.New("organization is inactive")
)

// FetchError reports a non-2xx response or a network failure.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to fetch: %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("Failed to fetch: %v", e.Err)
	}
	return "Failed to fetch"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ComplianceError carries the reason a URL was denied by policy or robots.txt.
type ComplianceError struct {
	URL    string
	Reason string
}

func (e *ComplianceError) Error() string {
	return e.Reason
}
