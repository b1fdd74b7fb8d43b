package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()

	b := NewBus(Config{BufferSize: 8, SweepInterval: time.Hour, RetentionWindow: time.Hour})
	t.Cleanup(b.Stop)

	return b
}

func TestBus_CreateJournalIsIdempotent(t *testing.T) {
	b := newTestBus(t)

	j1 := b.CreateJournal("job-1")
	j2 := b.CreateJournal("job-1")

	assert.Same(t, j1, j2)
}

func TestBus_AppendAndSubscribeUnknownJobFails(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Append("missing", "partial_result", nil)
	assert.ErrorIs(t, err, ErrJournalNotFound)

	_, _, err = b.Subscribe("missing", 0)
	assert.ErrorIs(t, err, ErrJournalNotFound)
}

func TestBus_AppendAndSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t)
	b.CreateJournal("job-1")

	ch, unsubscribe, err := b.Subscribe("job-1", 0)
	require.NoError(t, err)
	defer unsubscribe()

	seq, err := b.Append("job-1", "partial_result", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	select {
	case ev := <-ch:
		assert.Equal(t, "partial_result", ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_CloseDisconnectsSubscribers(t *testing.T) {
	b := newTestBus(t)
	b.CreateJournal("job-1")

	ch, unsubscribe, err := b.Subscribe("job-1", 0)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, b.Close("job-1"))

	_, ok := <-ch
	assert.False(t, ok)

	_, err = b.Append("job-1", "partial_result", nil)
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestBus_SweepReapsTerminalJournalsPastRetention(t *testing.T) {
	b := NewBus(Config{BufferSize: 8, SweepInterval: 10 * time.Millisecond, RetentionWindow: 20 * time.Millisecond})
	t.Cleanup(b.Stop)

	b.CreateJournal("job-1")
	_, err := b.Append("job-1", EventTypeDone, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := b.Append("job-1", "partial_result", nil)
		return err == ErrJournalNotFound
	}, time.Second, 5*time.Millisecond)
}
