package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsintel/searchcore/internal/eventbus"
	"github.com/newsintel/searchcore/internal/query"
)

type fakeAdapter struct {
	id     string
	items  []Item
	err    error
	delay  time.Duration
	called int
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) Fetch(ctx context.Context, _ query.NormalizedQuery, _ []string) (PartialResult, error) {
	a.called++

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return PartialResult{}, ctx.Err()
		}
	}

	if a.err != nil {
		return PartialResult{}, a.err
	}

	return PartialResult{Items: a.items}, nil
}

func testQuery() query.NormalizedQuery {
	return query.NormalizedQuery{Q: "tariffs", Mode: query.ModeFTS}
}

func TestFanout_Run_AggregatesAcrossAdaptersAndDedups(t *testing.T) {
	bus := eventbus.NewBus(eventbus.Config{})
	bus.CreateJournal("job-1")

	a1 := &fakeAdapter{id: "a1", items: []Item{{URL: "https://example.com/x"}, {URL: "https://example.com/y"}}}
	a2 := &fakeAdapter{id: "a2", items: []Item{{URL: "https://example.com/x/"}}} // dup of a1's /x after canonicalization

	f := New([]Adapter{a1, a2}, bus, Config{})

	outcome, err := f.Run(context.Background(), "job-1", testQuery(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Successful)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 2, outcome.Total)
	assert.Nil(t, outcome.FailureReason)
}

func TestFanout_Run_PartialFailurePolicyCompletedWithOneSuccess(t *testing.T) {
	bus := eventbus.NewBus(eventbus.Config{})
	bus.CreateJournal("job-2")

	ok := &fakeAdapter{id: "ok", items: []Item{{URL: "https://example.com/a"}}}
	bad := &fakeAdapter{id: "bad", err: errors.New("connection refused")}

	f := New([]Adapter{ok, bad}, bus, Config{})

	outcome, err := f.Run(context.Background(), "job-2", testQuery(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Successful)
	assert.Equal(t, 1, outcome.Failed)
	assert.Nil(t, outcome.FailureReason)
	require.Error(t, outcome.Errors)
}

func TestFanout_Run_AllFailedSetsFailureReason(t *testing.T) {
	bus := eventbus.NewBus(eventbus.Config{})
	bus.CreateJournal("job-3")

	bad1 := &fakeAdapter{id: "bad1", err: errors.New("connection refused")}
	bad2 := &fakeAdapter{id: "bad2", err: errors.New("connection refused")}

	f := New([]Adapter{bad1, bad2}, bus, Config{})

	outcome, err := f.Run(context.Background(), "job-3", testQuery(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Successful)
	assert.Equal(t, 2, outcome.Failed)
	require.NotNil(t, outcome.FailureReason)
}

func TestFanout_Run_PerSourceTimeoutDoesNotBlockOthers(t *testing.T) {
	bus := eventbus.NewBus(eventbus.Config{})
	bus.CreateJournal("job-4")

	slow := &fakeAdapter{id: "slow", delay: 50 * time.Millisecond}
	fast := &fakeAdapter{id: "fast", items: []Item{{URL: "https://example.com/z"}}}

	f := New([]Adapter{slow, fast}, bus, Config{PerSourceTimeout: 5 * time.Millisecond})

	outcome, err := f.Run(context.Background(), "job-4", testQuery(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Successful)
	assert.Equal(t, 1, outcome.Failed)
}

func TestCanonicalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://Example.com:443/a/":               "https://example.com/a",
		"http://example.com:80/a":                  "http://example.com/a",
		"https://example.com/a?utm_source=x&id=5":  "https://example.com/a?id=5",
		"https://example.com/a#section":             "https://example.com/a",
		"https://example.com/":                      "https://example.com/",
		"not-a-url":                                 "not-a-url",
	}

	for in, want := range cases {
		assert.Equal(t, want, canonicalizeURL(in), "input=%s", in)
	}
}
