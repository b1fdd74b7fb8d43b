package eventbus

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrJournalTerminal is returned by append once a Journal has recorded a
// done or error event; terminal states are absorbing.
var ErrJournalTerminal = errors.New("eventbus: journal is terminal")

// ErrJournalClosed is returned by subscribe/append once close(jobId) has
// been called.
var ErrJournalClosed = errors.New("eventbus: journal is closed")

// subscriber holds one subscribe() attachment's live delivery channel.
// overflow latches when a send would block; the next successful send
// carries a synthetic overflow event ahead of the real one, per spec's
// "dropped with a synthetic overflow final event" rule scoped per
// subscriber rather than per journal.
type subscriber struct {
	ch       chan Event
	overflow bool
}

// Journal is the single logical owner of one jobId's event history. All
// state transitions are serialized under mu: single writer, many readers,
// exactly as a Journal's concurrency contract requires.
type Journal struct {
	mu       sync.Mutex
	jobID    string
	capacity int

	buffer  []Event
	nextSeq uint64

	terminal bool
	closed   bool
	closedAt time.Time

	subs      map[int]*subscriber
	nextSubID int
}

func newJournal(jobID string, capacity int) *Journal {
	return &Journal{
		jobID:    jobID,
		capacity: capacity,
		// seq starts at 1 so the zero value of lastSeq unambiguously means
		// "nothing seen yet, replay from the start".
		nextSeq: 1,
		subs:    make(map[int]*subscriber),
	}
}

// append records an event and fans it out to every live subscriber.
// Returns the assigned seq. Disallowed once terminal or closed.
func (j *Journal) append(eventType string, data json.RawMessage) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, ErrJournalClosed
	}

	if j.terminal {
		return 0, ErrJournalTerminal
	}

	seq := j.nextSeq
	j.nextSeq++

	ev := Event{Seq: seq, EventType: eventType, Data: data, Time: time.Now().UTC()}

	j.buffer = append(j.buffer, ev)
	if len(j.buffer) > j.capacity {
		j.buffer = j.buffer[len(j.buffer)-j.capacity:]
	}

	for _, s := range j.subs {
		j.deliver(s, ev)
	}

	if isTerminalEventType(eventType) {
		j.terminal = true
		j.closedAt = time.Now().UTC()

		for id, s := range j.subs {
			close(s.ch)
			delete(j.subs, id)
		}
	}

	return seq, nil
}

// deliver sends ev to s's channel, latching overflow on backpressure. A
// previously overflowed subscriber is first offered a synthetic overflow
// marker; if that still can't be sent, ev itself is dropped and the
// subscriber stays overflowed.
func (j *Journal) deliver(s *subscriber, ev Event) {
	if s.overflow {
		select {
		case s.ch <- overflowEvent(ev.Seq):
			s.overflow = false
		default:
			return
		}
	}

	select {
	case s.ch <- ev:
	default:
		s.overflow = true
	}
}

// subscribe attaches a new subscriber positioned just after lastSeq.
// Buffered events with seq > lastSeq are replayed synchronously into the
// returned channel before any live event; if the buffer no longer holds
// lastSeq+1 (the subscriber fell behind further than capacity allows), a
// synthetic overflow event is replayed first. If the journal is already
// terminal, the channel is pre-loaded with the replay and closed
// immediately: callers see end-of-stream with no further blocking.
func (j *Journal) subscribe(lastSeq uint64) (<-chan Event, func(), error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, nil, ErrJournalClosed
	}

	// Capacity+1 so replay of a full buffer plus one live event can never
	// block the writer inside append's lock.
	ch := make(chan Event, j.capacity+1)

	if len(j.buffer) > 0 && j.buffer[0].Seq > lastSeq+1 {
		ch <- overflowEvent(j.buffer[0].Seq - 1)
	}

	for _, ev := range j.buffer {
		if ev.Seq > lastSeq {
			ch <- ev
		}
	}

	if j.terminal {
		close(ch)
		return ch, func() {}, nil
	}

	id := j.nextSubID
	j.nextSubID++
	j.subs[id] = &subscriber{ch: ch}

	unsubscribe := func() {
		j.mu.Lock()
		defer j.mu.Unlock()

		if s, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(s.ch)
		}
	}

	return ch, unsubscribe, nil
}

// close marks the journal terminal (if not already) and disconnects every
// live subscriber. Called by C5/C6 when they deem the job disposable.
func (j *Journal) close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}

	j.closed = true
	j.terminal = true
	j.closedAt = time.Now().UTC()

	for id, s := range j.subs {
		close(s.ch)
		delete(j.subs, id)
	}
}

func (j *Journal) isTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.terminal
}

func (j *Journal) terminalSince() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.terminal {
		return time.Time{}, false
	}

	return j.closedAt, true
}
