package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKafkaPublisher_ConfiguresWriterTopic(t *testing.T) {
	pub := NewKafkaPublisher([]string{"localhost:9092"}, "ai-task-requests")
	defer func() {
		_ = pub.Close()
	}()

	assert.Equal(t, "ai-task-requests", pub.writer.Topic)
}
