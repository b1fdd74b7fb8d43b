package aijob

import "github.com/newsintel/searchcore/internal/failure"

// IsRetryable reports whether a sub-task failing with reason may be
// redispatched, per spec.md §4.6: network and timeout failures are
// always retryable, service failures only when overloaded specifically
// (a hard service_unavailable/service_error is not). Content errors
// (parse_error, blocked_by_captcha, empty_content, ...) are never
// retried: retrying won't change what's on the page.
func IsRetryable(reason failure.Reason) bool {
	switch reason.Category {
	case failure.CategoryNetwork, failure.CategoryTimeout:
		return true
	case failure.CategoryService:
		return reason.Code == failure.CodeServiceOverloaded
	default:
		return false
	}
}
