package searchconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/sweeper"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	cfg := Load()

	assert.Equal(t, eventbus.DefaultBufferSize, cfg.EventBus.BufferSize)
	assert.Equal(t, eventbus.DefaultRetentionWindow, cfg.EventBus.RetentionWindow)
	assert.Equal(t, sweeper.DefaultInterval, cfg.Sweeper.Interval)
	assert.Equal(t, sweeper.DefaultRetentionWindow, cfg.Sweeper.RetentionWindow)
	assert.Equal(t, 2, cfg.AiMaxRetries)
}

func TestLoad_ReadsEnvOverrides(t *testing.T) {
	t.Setenv("SEARCHCORE_EVENT_BUFFER_SIZE", "512")
	t.Setenv("SEARCHCORE_AI_MAX_RETRIES", "5")

	cfg := Load()

	assert.Equal(t, 512, cfg.EventBus.BufferSize)
	assert.Equal(t, 5, cfg.AiMaxRetries)
}
