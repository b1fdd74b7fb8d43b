package aijob

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newsintel/searchcore/internal/failure"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		code failure.Code
		want bool
	}{
		{"connection refused is retryable", failure.CodeConnectionRefused, true},
		{"job overall timeout is retryable", failure.CodeTimeoutJobOverall, true},
		{"service overloaded is retryable", failure.CodeServiceOverloaded, true},
		{"service unavailable is not retryable", failure.CodeServiceUnavailable, false},
		{"parse error is not retryable", failure.CodeParseError, false},
		{"blocked by captcha is not retryable", failure.CodeBlockedByCaptcha, false},
		{"empty content is not retryable", failure.CodeEmptyContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(failure.New(tt.code)))
		})
	}
}
