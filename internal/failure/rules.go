package failure

import (
	"regexp"
	"strings"
)

// rule pairs a compiled pattern against a lower-cased error/provider message
// with the code it implies. Patterns are matched in declaration order;
// the first match wins. Entries are ordered most-specific-first so that a
// message matching several patterns (e.g. both a generic "timeout" and a
// specific "connection timed out") resolves to the more precise code, per
// spec.md §9's open question on overlapping exception patterns.
type rule struct {
	pattern *regexp.Regexp
	code    Code
}

var inferenceRules = []rule{
	// timeout, specific before generic
	{regexp.MustCompile(`overall.*timeout|job.*timed out`), CodeTimeoutJobOverall},
	{regexp.MustCompile(`per[-_ ]?source.*timeout|source.*timed out`), CodeTimeoutPerSource},
	{regexp.MustCompile(`per[-_ ]?(sub[-_ ]?task|subtask).*timeout|subtask.*timed out`), CodeTimeoutPerSubtask},
	{regexp.MustCompile(`poll(ing)?.*timeout|timed out polling`), CodeTimeoutPolling},

	// network
	{regexp.MustCompile(`connection refused`), CodeConnectionRefused},
	{regexp.MustCompile(`dial.*timeout|connection timed? ?out|i/o timeout`), CodeConnectionTimeout},
	{regexp.MustCompile(`no such host|dns.*(fail|resolv)`), CodeDNSResolutionFailed},
	{regexp.MustCompile(`network is unreachable|host is unreachable`), CodeNetworkUnreachable},
	{regexp.MustCompile(`tls:|ssl.*handshake|certificate`), CodeSSLHandshakeFailed},

	// service
	{regexp.MustCompile(`\b503\b|service unavailable`), CodeServiceUnavailable},
	{regexp.MustCompile(`\b429\b|too many requests|rate limit`), CodeServiceOverloaded},
	{regexp.MustCompile(`\b5\d\d\b|internal server error|upstream error`), CodeServiceError},

	// content
	{regexp.MustCompile(`empty (body|content|response)`), CodeEmptyContent},
	{regexp.MustCompile(`parse error|unmarshal|malformed|invalid json|invalid xml`), CodeParseError},
	{regexp.MustCompile(`invalid url|malformed url|no such url`), CodeInvalidURL},
	{regexp.MustCompile(`robots\.txt|disallowed by robots`), CodeBlockedByRobots},
	{regexp.MustCompile(`captcha`), CodeBlockedByCaptcha},
	{regexp.MustCompile(`content too large|payload too large|\b413\b`), CodeContentTooLarge},

	// processing
	{regexp.MustCompile(`analysis failed|analyzer error`), CodeAnalysisFailed},
	{regexp.MustCompile(`extraction failed|extractor error`), CodeExtractionFailed},

	// job
	{regexp.MustCompile(`cancel`), CodeCancelled},
	{regexp.MustCompile(`duplicate callback`), CodeDuplicateCallback},
	{regexp.MustCompile(`invalid callback token|bad token|token mismatch`), CodeInvalidCallbackToken},
}

// Infer matches message against the ordered rule table and returns the
// first matching code's Reason. Matching is case-insensitive. An empty or
// non-matching message yields CodeUnknown / CategoryUnknown.
func Infer(message string) Reason {
	if message == "" {
		return New(CodeUnknown)
	}

	lower := strings.ToLower(message)

	for _, r := range inferenceRules {
		if r.pattern.MatchString(lower) {
			return New(r.code)
		}
	}

	return New(CodeUnknown)
}

// RuleCount reports how many inference rules are registered, primarily for
// tests asserting the table covers every closed code.
func RuleCount() int {
	return len(inferenceRules)
}
