package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoop_EnrichReturnsEmptySignals(t *testing.T) {
	var e SignalEnricher = Noop{}

	signals, err := e.Enrich(context.Background(), Subject{URL: "https://example.com/a"})

	assert.NoError(t, err)
	assert.Nil(t, signals.Reliability)
	assert.Nil(t, signals.Sentiment)
	assert.Nil(t, signals.Bias)
	assert.Nil(t, signals.CommunityScore)
}
