package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newsintel/searchcore/internal/storage"
)

func TestCategorizeURL_KnownHosts(t *testing.T) {
	cases := []struct {
		url      string
		expected storage.SourceCategory
	}{
		{"https://www.reddit.com/r/news/comments/abc", storage.SourceCommunity},
		{"https://news.ycombinator.com/item?id=1", storage.SourceCommunity},
		{"https://medium.com/@author/post", storage.SourceBlog},
		{"https://arxiv.org/abs/2601.00001", storage.SourceAcademic},
		{"https://www.reuters.com/world/article", storage.SourceNews},
	}

	for _, c := range cases {
		assert.Equal(t, c.expected, categorizeURL(c.url, ""), c.url)
	}
}

func TestCategorizeURL_GovSuffixIsAlwaysOfficial(t *testing.T) {
	assert.Equal(t, storage.SourceOfficial, categorizeURL("https://www.cdc.gov/outbreaks/latest", storage.SourceNews))
}

func TestCategorizeURL_UnknownHostFallsBackToProvidedCategory(t *testing.T) {
	got := categorizeURL("https://obscure-crawler-source.example/post", storage.SourceBlog)

	assert.Equal(t, storage.SourceBlog, got)
}

func TestCategorizeURL_UnknownHostWithNoFallbackDefaultsToNews(t *testing.T) {
	got := categorizeURL("https://obscure-crawler-source.example/post", "")

	assert.Equal(t, storage.SourceNews, got)
}

func TestCategorizeURL_MalformedURLFallsBackToProvidedOrDefault(t *testing.T) {
	assert.Equal(t, storage.SourceBlog, categorizeURL("", storage.SourceBlog))
	assert.Equal(t, storage.SourceNews, categorizeURL("not a url at all", ""))
}

func TestCategorizeURL_WwwPrefixIsStripped(t *testing.T) {
	assert.Equal(t, storage.SourceCommunity, categorizeURL("https://www.twitter.com/status/1", ""))
	assert.Equal(t, storage.SourceCommunity, categorizeURL("https://twitter.com/status/1", ""))
}
