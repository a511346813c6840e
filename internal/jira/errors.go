package jira

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuth means the token was rejected (401/403). Requires user
	// action; never retried automatically.
	ErrAuth = errors.New("jira: authentication failed")

	// ErrNotFound means the issue, filter, or URL could not be resolved.
	ErrNotFound = errors.New("jira: not found")

	// ErrFilterInvalid means the JQL or filter reference was rejected.
	ErrFilterInvalid = errors.New("jira: invalid filter")

	// ErrValidation means the request payload was rejected, e.g. a
	// worklog below Jira's minimum granularity. Not retried.
	ErrValidation = errors.New("jira: request rejected")

	// ErrRateLimited means the server asked us to back off. Retryable.
	ErrRateLimited = errors.New("jira: rate limited")

	// ErrTransitionUnavailable means the issue's workflow has no
	// matching transition. Non-fatal to callers.
	ErrTransitionUnavailable = errors.New("jira: no matching transition")
)

// RateLimitError carries the server's Retry-After hint alongside
// ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("jira: rate limited, retry after %s", e.RetryAfter)
	}
	return "jira: rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterHint extracts the Retry-After duration from err, if any.
func RetryAfterHint(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
