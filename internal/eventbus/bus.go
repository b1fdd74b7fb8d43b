package eventbus

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Defaults per spec.md §4.4: a 256-event retained buffer per job, swept
// from memory some time after it goes terminal.
const (
	DefaultBufferSize      = 256
	DefaultRetentionWindow = 10 * time.Minute
	DefaultSweepInterval   = 1 * time.Minute
)

// ErrJournalNotFound is returned by append/subscribe for an unknown jobId.
var ErrJournalNotFound = errors.New("eventbus: journal not found")

// Config controls a Bus's per-journal buffer size and terminal-journal
// retention sweep.
type Config struct {
	BufferSize      int
	RetentionWindow time.Duration
	SweepInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}

	if c.RetentionWindow <= 0 {
		c.RetentionWindow = DefaultRetentionWindow
	}

	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}

	return c
}

// Bus is the process-wide registry of per-jobId Journals. It mirrors the
// mutex-guarded-map-plus-background-cleanup shape used elsewhere in this
// codebase for bounded in-memory state, adapted here to reap terminal
// journals after their retention window instead of idle rate-limit
// buckets.
type Bus struct {
	mu       sync.RWMutex
	journals map[string]*Journal

	cfg Config

	sweepTicker *time.Ticker
	done        chan struct{}
	stopOnce    sync.Once
}

// NewBus starts a Bus with its background retention sweep running.
// Callers must call Stop when the bus is no longer needed.
func NewBus(cfg Config) *Bus {
	cfg = cfg.withDefaults()

	b := &Bus{
		journals:    make(map[string]*Journal),
		cfg:         cfg,
		sweepTicker: time.NewTicker(cfg.SweepInterval),
		done:        make(chan struct{}),
	}

	go b.runSweep()

	return b
}

// CreateJournal is idempotent: a second call for the same jobId returns
// the existing Journal untouched.
func (b *Bus) CreateJournal(jobID string) *Journal {
	b.mu.RLock()
	j, ok := b.journals[jobID]
	b.mu.RUnlock()

	if ok {
		return j
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if j, ok = b.journals[jobID]; ok {
		return j
	}

	j = newJournal(jobID, b.cfg.BufferSize)
	b.journals[jobID] = j

	return j
}

func (b *Bus) lookup(jobID string) (*Journal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	j, ok := b.journals[jobID]
	if !ok {
		return nil, ErrJournalNotFound
	}

	return j, nil
}

// Append appends eventType/data to jobId's Journal. data may be nil.
func (b *Bus) Append(jobID, eventType string, data json.RawMessage) (uint64, error) {
	j, err := b.lookup(jobID)
	if err != nil {
		return 0, err
	}

	return j.append(eventType, data)
}

// Subscribe attaches to jobId's Journal at lastSeq, per Journal.subscribe.
func (b *Bus) Subscribe(jobID string, lastSeq uint64) (<-chan Event, func(), error) {
	j, err := b.lookup(jobID)
	if err != nil {
		return nil, nil, err
	}

	return j.subscribe(lastSeq)
}

// Close marks jobId's Journal closed and disconnects its subscribers. The
// Journal itself is retained (for late replay of its buffer) until the
// retention sweep reaps it.
func (b *Bus) Close(jobID string) error {
	j, err := b.lookup(jobID)
	if err != nil {
		return err
	}

	j.close()

	return nil
}

// Stop halts the background retention sweep. Safe to call more than once.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.sweepTicker.Stop()
		close(b.done)
	})
}

func (b *Bus) runSweep() {
	for {
		select {
		case <-b.sweepTicker.C:
			b.sweep()
		case <-b.done:
			return
		}
	}
}

func (b *Bus) sweep() {
	now := time.Now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	for jobID, j := range b.journals {
		closedAt, terminal := j.terminalSince()
		if terminal && now.Sub(closedAt) > b.cfg.RetentionWindow {
			delete(b.journals, jobID)
		}
	}
}
