// Package sources implements external source fan-out (C3): concurrent
// dispatch to the corpus and every registered adapter, per-source
// deadlines, completion-ordered event emission, and cross-source URL
// dedup.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/failure"
	"github.com/newsintel/searchcore/internal/query"
)

// Item is one result row an Adapter reports, already shaped for the
// partial_result event payload.
type Item struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// PartialResult is one adapter's completed fetch.
type PartialResult struct {
	Items []Item
}

// Adapter is a pluggable external (or corpus) source, registered under a
// stable id (spec.md §4.3).
type Adapter interface {
	ID() string
	Fetch(ctx context.Context, q query.NormalizedQuery, priorityURLs []string) (PartialResult, error)
}

// Outcome summarizes a fan-out run for the caller (C5's job manager) to
// decide the parent SearchJob's terminal status.
type Outcome struct {
	Successful int
	Failed     int
	Total      int
	// FailureReason is set only when no source succeeded and at least one
	// failed; its category is failure.AggregateCategory over the failed
	// sources in completion order, and its code is failure.CodeUnknown.
	FailureReason *failure.Reason
	Errors        error
}

// Config bounds fan-out timing. Each adapter gets its own rate limiter
// seeded from PerSourceRPS so a single slow/misbehaving provider can't
// starve the others' request budget; PerSourceTimeout bounds how long any
// one adapter's Fetch may run.
type Config struct {
	PerSourceTimeout time.Duration
	PerSourceRPS     float64
	PerSourceBurst   int
}

func (c Config) withDefaults() Config {
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 10 * time.Second
	}

	if c.PerSourceRPS <= 0 {
		c.PerSourceRPS = 5
	}

	if c.PerSourceBurst <= 0 {
		c.PerSourceBurst = 10
	}

	return c
}

// Fanout dispatches a NormalizedQuery to every registered adapter
// concurrently and reports progress on the job's Journal.
type Fanout struct {
	adapters []Adapter
	bus      *eventbus.Bus
	cfg      Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New wires a Fanout over adapters (which should include a corpus-backed
// Adapter alongside any external web-search/AI adapters; spec.md §4.3
// step 2 dispatches "C2 call and every enabled adapter" identically).
func New(adapters []Adapter, bus *eventbus.Bus, cfg Config) *Fanout {
	return &Fanout{
		adapters: adapters,
		bus:      bus,
		cfg:      cfg.withDefaults(),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *Fanout) limiterFor(adapterID string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[adapterID]; ok {
		return l
	}

	l := rate.NewLimiter(rate.Limit(f.cfg.PerSourceRPS), f.cfg.PerSourceBurst)
	f.limiters[adapterID] = l

	return l
}

type sourceResult struct {
	adapterID string
	result    PartialResult
	err       error
	tookMs    int64
}

// Run executes the fan-out for jobID: emits connected, dispatches every
// adapter concurrently with its own deadline, emits partial_result/
// source_error in completion order with cross-source dedup applied, then
// emits done and returns the aggregate Outcome.
func (f *Fanout) Run(ctx context.Context, jobID string, q query.NormalizedQuery, priorityURLs []string) (Outcome, error) {
	if _, err := f.bus.Append(jobID, "connected", mustMarshal(map[string]string{"jobId": jobID})); err != nil {
		return Outcome{}, fmt.Errorf("publish connected event: %w", err)
	}

	results := make(chan sourceResult, len(f.adapters))

	var wg sync.WaitGroup

	for _, adapter := range f.adapters {
		wg.Add(1)

		go func(a Adapter) {
			defer wg.Done()

			f.dispatchOne(ctx, a, q, priorityURLs, results)
		}(adapter)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]struct{})

	var (
		successful, failed int
		failureCategories  []failure.Category
		errs               error
	)

	for res := range results {
		if res.err != nil {
			failed++

			reason := failure.Infer(res.err.Error())
			failureCategories = append(failureCategories, reason.Category)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", res.adapterID, res.err))

			if _, appendErr := f.bus.Append(jobID, "source_error", mustMarshal(map[string]interface{}{
				"source":  res.adapterID,
				"code":    reason.Code,
				"message": res.err.Error(),
			})); appendErr != nil {
				return Outcome{}, fmt.Errorf("publish source_error event: %w", appendErr)
			}

			continue
		}

		fresh := dedup(seen, res.result.Items)
		if len(res.result.Items) > 0 {
			successful++
		}

		if _, appendErr := f.bus.Append(jobID, "partial_result", mustMarshal(map[string]interface{}{
			"source": res.adapterID,
			"items":  fresh,
			"tookMs": res.tookMs,
		})); appendErr != nil {
			return Outcome{}, fmt.Errorf("publish partial_result event: %w", appendErr)
		}
	}

	outcome := Outcome{
		Successful: successful,
		Failed:     failed,
		Total:      len(f.adapters),
		Errors:     errs,
	}

	if successful == 0 {
		if cat := failure.AggregateCategory(failureCategories); cat != "" {
			reason := failure.Reason{Category: cat, Code: failure.CodeUnknown}
			outcome.FailureReason = &reason
		}
	}

	if _, err := f.bus.Append(jobID, "done", mustMarshal(map[string]interface{}{
		"successful": successful,
		"failed":     failed,
		"total":      len(f.adapters),
	})); err != nil {
		return outcome, fmt.Errorf("publish done event: %w", err)
	}

	return outcome, nil
}

func (f *Fanout) dispatchOne(ctx context.Context, a Adapter, q query.NormalizedQuery, priorityURLs []string, out chan<- sourceResult) {
	limiter := f.limiterFor(a.ID())
	if err := limiter.Wait(ctx); err != nil {
		out <- sourceResult{adapterID: a.ID(), err: err}

		return
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, f.cfg.PerSourceTimeout)
	defer cancel()

	start := time.Now()

	result, err := a.Fetch(deadlineCtx, q, priorityURLs)
	tookMs := time.Since(start).Milliseconds()

	select {
	case <-ctx.Done():
		// The overall job is gone; a late arrival is discarded per
		// spec.md §4.3's cancellation rule.
		return
	default:
	}

	out <- sourceResult{adapterID: a.ID(), result: result, err: err, tookMs: tookMs}
}

// dedup filters items whose canonicalized URL has already been seen
// (across any source in this run), mutating seen in place. The first
// arrival wins, per spec.md §4.3.
func dedup(seen map[string]struct{}, items []Item) []Item {
	fresh := make([]Item, 0, len(items))

	for _, item := range items {
		key := canonicalizeURL(item.URL)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		fresh = append(fresh, item)
	}

	return fresh
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}

	return data
}
