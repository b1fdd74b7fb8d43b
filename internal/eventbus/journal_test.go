package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()

	events := make([]Event, 0, n)

	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}

			events = append(events, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}

	return events
}

func TestJournal_AppendAssignsMonotonicSeq(t *testing.T) {
	j := newJournal("job-1", 256)

	seq0, err := j.append("partial_result", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq0)

	seq1, err := j.append("partial_result", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq1)
}

func TestJournal_AppendAfterTerminalFails(t *testing.T) {
	j := newJournal("job-1", 256)

	_, err := j.append(EventTypeDone, nil)
	require.NoError(t, err)

	_, err = j.append("partial_result", nil)
	assert.ErrorIs(t, err, ErrJournalTerminal)
}

func TestJournal_SubscribeReplaysBufferedEvents(t *testing.T) {
	j := newJournal("job-1", 256)

	_, _ = j.append("partial_result", nil)
	_, _ = j.append("partial_result", nil)

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	events := drain(t, ch, 2)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
}

func TestJournal_SubscribeFromLastSeqSkipsReplayed(t *testing.T) {
	j := newJournal("job-1", 256)

	_, _ = j.append("partial_result", nil)
	_, _ = j.append("partial_result", nil)
	_, _ = j.append("partial_result", nil)

	ch, unsubscribe, err := j.subscribe(1)
	require.NoError(t, err)
	defer unsubscribe()

	events := drain(t, ch, 1)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].Seq)
}

func TestJournal_SubscribeDeliversLiveEvents(t *testing.T) {
	j := newJournal("job-1", 256)

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = j.append("partial_result", nil)
	require.NoError(t, err)

	events := drain(t, ch, 1)
	require.Len(t, events, 1)
	assert.Equal(t, "partial_result", events[0].EventType)
}

func TestJournal_TerminalEventClosesLiveSubscribers(t *testing.T) {
	j := newJournal("job-1", 256)

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	_, err = j.append(EventTypeDone, nil)
	require.NoError(t, err)

	events := drain(t, ch, 1)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeDone, events[0].EventType)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after terminal event")
}

func TestJournal_SubscribeAfterTerminalReplaysThenClosesImmediately(t *testing.T) {
	j := newJournal("job-1", 256)

	_, _ = j.append("partial_result", nil)
	_, _ = j.append(EventTypeDone, nil)

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	events := drain(t, ch, 2)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeDone, events[1].EventType)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestJournal_SubscribeBeyondCapacityEmitsOverflow(t *testing.T) {
	j := newJournal("job-1", 4)

	for i := 0; i < 10; i++ {
		_, _ = j.append("partial_result", nil)
	}

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	events := drain(t, ch, 5)
	require.Len(t, events, 5)
	assert.Equal(t, EventTypeOverflow, events[0].EventType)
}

func TestJournal_SlowSubscriberGetsOverflowMarkerNotBlockWriter(t *testing.T) {
	j := newJournal("job-1", 2)

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	// Fill the subscriber's channel (capacity+1 = 3) and push it past
	// capacity; none of this may block the writer.
	for i := 0; i < 10; i++ {
		_, err := j.append("partial_result", nil)
		require.NoError(t, err)
	}

	// Drain the channel so append() has room to deliver the latched
	// overflow marker on its next call.
	_ = drain(t, ch, 3)

	_, err = j.append("partial_result", nil)
	require.NoError(t, err)

	events := drain(t, ch, 2)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeOverflow, events[0].EventType)
}

func TestJournal_MultipleSubscribersHaveIndependentPositions(t *testing.T) {
	j := newJournal("job-1", 256)

	chA, unsubA, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubA()

	_, _ = j.append("partial_result", nil)

	chB, unsubB, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubB()

	_, _ = j.append("partial_result", nil)

	eventsA := drain(t, chA, 2)
	eventsB := drain(t, chB, 2)

	require.Len(t, eventsA, 2)
	require.Len(t, eventsB, 2)
	assert.Equal(t, uint64(1), eventsA[0].Seq)
	assert.Equal(t, uint64(1), eventsB[0].Seq)
}

func TestJournal_Close(t *testing.T) {
	j := newJournal("job-1", 256)

	ch, unsubscribe, err := j.subscribe(0)
	require.NoError(t, err)
	defer unsubscribe()

	j.close()

	_, ok := <-ch
	assert.False(t, ok)

	_, err = j.append("partial_result", nil)
	assert.ErrorIs(t, err, ErrJournalClosed)

	_, _, err = j.subscribe(0)
	assert.ErrorIs(t, err, ErrJournalClosed)
}
