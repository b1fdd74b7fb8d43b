package sources

import (
	"context"
	"fmt"

	"github.com/newsintel/searchcore/internal/corpus"
	"github.com/newsintel/searchcore/internal/query"
)

const corpusAdapterID = "corpus"

// CorpusAdapter wraps the indexed-article corpus (C2) as one of the
// sources a Fanout dispatches to, per spec.md §4.3 step 2's instruction
// to treat the corpus call identically to every external adapter.
type CorpusAdapter struct {
	searcher *corpus.Searcher
	pageSize int
}

// NewCorpusAdapter wraps searcher. pageSize<=0 falls back to the
// corpus package's own default.
func NewCorpusAdapter(searcher *corpus.Searcher, pageSize int) *CorpusAdapter {
	return &CorpusAdapter{searcher: searcher, pageSize: pageSize}
}

// ID implements Adapter.
func (a *CorpusAdapter) ID() string { return corpusAdapterID }

// Fetch implements Adapter, returning the corpus's first page as Items.
// priorityURLs are ignored; the corpus has no notion of seed URLs.
func (a *CorpusAdapter) Fetch(ctx context.Context, q query.NormalizedQuery, _ []string) (PartialResult, error) {
	page, err := a.searcher.Search(ctx, q, 0, a.pageSize)
	if err != nil {
		return PartialResult{}, fmt.Errorf("corpus search: %w", err)
	}

	items := make([]Item, 0, len(page.Elements))

	for _, article := range page.Elements {
		publishedAt := article.PublishedDate
		items = append(items, Item{
			URL:         article.URL,
			Title:       article.Title,
			PublishedAt: publishedAt,
		})
	}

	return PartialResult{Items: items}, nil
}
