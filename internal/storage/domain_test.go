package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   SearchJobStatus
		terminal bool
	}{
		{SearchJobPending, false},
		{SearchJobRunning, false},
		{SearchJobCompleted, true},
		{SearchJobFailed, true},
		{SearchJobTimeout, true},
		{SearchJobCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestAiJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   AiJobStatus
		terminal bool
	}{
		{AiJobPending, false},
		{AiJobInProgress, false},
		{AiJobCompleted, true},
		{AiJobPartialSuccess, true},
		{AiJobFailed, true},
		{AiJobTimeout, true},
		{AiJobCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestAiSubTaskStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   AiSubTaskStatus
		terminal bool
	}{
		{AiSubTaskPending, false},
		{AiSubTaskInProgress, false},
		{AiSubTaskCompleted, true},
		{AiSubTaskFailed, true},
		{AiSubTaskTimeout, true},
		{AiSubTaskCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}
