// Package dispatch sends AiSubTask task-request messages to a provider's
// outbound channel, either a Kafka topic or an HTTP endpoint, per the
// orchestrator's (C6) "dispatched by publishing a task-request message to
// the provider's outbound channel (message broker or HTTP)" contract.
package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownProvider is returned when a Publisher has no route configured
// for the requested provider id.
var ErrUnknownProvider = errors.New("dispatch: unknown provider")

// TaskRequest is the message a Publisher sends to a provider to start a
// single AiSubTask.
type TaskRequest struct {
	JobID         string    `json:"jobId"`
	SubTaskID     string    `json:"subTaskId"`
	ProviderID    string    `json:"providerId"`
	TaskType      string    `json:"taskType"`
	Topic         string    `json:"topic"`
	BaseURL       string    `json:"baseUrl,omitempty"`
	CallbackToken string    `json:"callbackToken"`
	CallbackURL   string    `json:"callbackUrl"`
	DispatchedAt  time.Time `json:"dispatchedAt"`
}

// Publisher dispatches a TaskRequest to its provider's outbound channel.
type Publisher interface {
	Dispatch(ctx context.Context, req TaskRequest) error
}
