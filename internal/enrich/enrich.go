// Package enrich defines the enrichment port: the shape of the signals
// attached to a search result, and the pluggable interface that produces
// them. No scoring model is implemented here; that is explicitly out of
// scope (spec.md's Non-goals: "not a model host").
package enrich

import "context"

// Stance mirrors storage.Stance for enrichment inputs that aren't
// already persisted evidence rows (e.g. a live web-search item).
type Stance string

const (
	StancePro     Stance = "PRO"
	StanceCon     Stance = "CON"
	StanceNeutral Stance = "NEUTRAL"
)

// Signals is the opaque enrichment attached to a result item. Every
// field is optional: a SignalEnricher populates only what it can score,
// leaving the rest nil so a partial enrichment doesn't fabricate
// confidence it doesn't have.
type Signals struct {
	// Reliability is a source-trust score in [0, 1].
	Reliability *float64 `json:"reliability,omitempty"`
	// Sentiment is a polarity score in [-1, 1].
	Sentiment *float64 `json:"sentiment,omitempty"`
	// Bias is a left/right lean score in [-1, 1].
	Bias *float64 `json:"bias,omitempty"`
	// CommunityScore is an aggregated community-opinion score in [0, 1].
	CommunityScore *float64 `json:"communityScore,omitempty"`
}

// Subject is the minimal shape a SignalEnricher needs to score a result:
// enough identity and text to run a reliability/sentiment/bias model
// against, without depending on storage.Article or storage.CrawlEvidence
// directly.
type Subject struct {
	URL            string
	SourceDomain   string
	Title          string
	Snippet        string
	Stance         Stance
	SourceCategory string
}

// SignalEnricher is the pluggable port a deployment wires in to actually
// score Subjects. The core ships no implementation; callers that don't
// configure one get an enrich.Noop that returns empty Signals for every
// subject, so enrichment is always optional and never blocks a result.
type SignalEnricher interface {
	Enrich(ctx context.Context, subject Subject) (Signals, error)
}

// Noop is the zero-value SignalEnricher: every subject gets empty
// Signals. Used as the default until a real resolver is configured.
type Noop struct{}

// Enrich implements SignalEnricher.
func (Noop) Enrich(_ context.Context, _ Subject) (Signals, error) {
	return Signals{}, nil
}
