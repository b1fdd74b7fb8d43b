package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfer_MatchesExpectedCode(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Code
	}{
		{"overall timeout", "search job overall timeout exceeded", CodeTimeoutJobOverall},
		{"per source timeout", "per-source timeout waiting for adapter", CodeTimeoutPerSource},
		{"per subtask timeout", "per-subtask timeout: provider did not callback", CodeTimeoutPerSubtask},
		{"polling timeout", "polling timeout after max attempts", CodeTimeoutPolling},
		{"connection refused", "dial tcp: connection refused", CodeConnectionRefused},
		{"connection timeout", "dial tcp 10.0.0.1:443: i/o timeout", CodeConnectionTimeout},
		{"dns failure", "lookup example.com: no such host", CodeDNSResolutionFailed},
		{"network unreachable", "connect: network is unreachable", CodeNetworkUnreachable},
		{"tls failure", "tls: handshake failure", CodeSSLHandshakeFailed},
		{"service unavailable", "HTTP 503 service unavailable", CodeServiceUnavailable},
		{"rate limited", "429 too many requests", CodeServiceOverloaded},
		{"service error", "HTTP 500 internal server error", CodeServiceError},
		{"empty body", "received empty response body", CodeEmptyContent},
		{"parse error", "failed to unmarshal response: invalid json", CodeParseError},
		{"invalid url", "invalid url provided by source", CodeInvalidURL},
		{"robots", "fetch disallowed by robots.txt", CodeBlockedByRobots},
		{"captcha", "blocked: captcha challenge detected", CodeBlockedByCaptcha},
		{"too large", "413 payload too large", CodeContentTooLarge},
		{"analysis failed", "analysis failed: model returned no signal", CodeAnalysisFailed},
		{"extraction failed", "extraction failed: no article body found", CodeExtractionFailed},
		{"cancelled", "job cancelled by caller", CodeCancelled},
		{"duplicate callback", "duplicate callback for sub-task", CodeDuplicateCallback},
		{"invalid token", "invalid callback token presented", CodeInvalidCallbackToken},
		{"unrecognized message", "the cat knocked over the router", CodeUnknown},
		{"empty message", "", CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := Infer(tt.message)
			assert.Equal(t, tt.want, reason.Code)
			assert.Equal(t, CategoryFor(tt.want), reason.Category)
		})
	}
}

func TestInfer_MostSpecificWinsOverGenericTimeout(t *testing.T) {
	reason := Infer("per-source timeout while fetching from adapter, job still running")

	assert.Equal(t, CodeTimeoutPerSource, reason.Code)
}

func TestInfer_CaseInsensitive(t *testing.T) {
	reason := Infer("CONNECTION REFUSED by remote host")

	assert.Equal(t, CodeConnectionRefused, reason.Code)
}

func TestRuleCount_CoversMoreThanTimeoutRules(t *testing.T) {
	assert.Greater(t, RuleCount(), 15)
}
