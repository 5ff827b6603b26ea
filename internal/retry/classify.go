// Package retry implements the classifier and retry loop of SPEC_FULL.md
// §4.7, grounded on the teacher's internal/retry/retry.go (Do/DoWithValue,
// PermanentError, backoff constructors) and internal/agent/providers/errors.go
// (ClassifyError's status-code and lowercased-substring matching), adapted
// to the spec's simpler four-bucket classifier and exact header-precedence
// delay rule.
package retry

import "strings"

// Kind is the classifier's output bucket.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindOverloaded  Kind = "overloaded"
	KindServerError Kind = "server_error"
	KindNotRetryable Kind = "not_retryable"
)

// Retryable reports whether a Kind should be retried at all.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindOverloaded, KindServerError:
		return true
	default:
		return false
	}
}

// Classify maps (http_status?, message) to a Kind, per the table in
// SPEC_FULL.md §4.7. status == 0 means "no HTTP status available".
func Classify(status int, message string) Kind {
	msg := strings.ToLower(message)

	switch {
	case status == 429:
		return KindRateLimited
	case status >= 500 && status <= 599:
		return KindServerError
	}

	switch {
	case containsAny(msg, "overloaded", "exhausted", "unavailable"):
		return KindOverloaded
	case containsAny(msg, "rate_limit", "too_many_requests"):
		return KindRateLimited
	case containsAny(msg, "server_error", "internal_error"):
		return KindServerError
	default:
		return KindNotRetryable
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
