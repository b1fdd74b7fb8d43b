package callback

import (
	"net/url"
	"strings"

	"github.com/newsintel/searchcore/internal/storage"
)

// domainCategoryMap is the closed host -> SourceCategory table spec.md
// §4.6 requires evidence classification to use. Unrecognized hosts fall
// back to whatever category the provider supplied, or SourceNews.
var domainCategoryMap = map[string]storage.SourceCategory{
	"reddit.com":           storage.SourceCommunity,
	"news.ycombinator.com": storage.SourceCommunity,
	"twitter.com":          storage.SourceCommunity,
	"x.com":                storage.SourceCommunity,
	"medium.com":           storage.SourceBlog,
	"substack.com":         storage.SourceBlog,
	"wordpress.com":        storage.SourceBlog,
	"blogspot.com":         storage.SourceBlog,
	"arxiv.org":            storage.SourceAcademic,
	"nature.com":           storage.SourceAcademic,
	"sciencedirect.com":    storage.SourceAcademic,
	"ieee.org":             storage.SourceAcademic,
	"reuters.com":          storage.SourceNews,
	"apnews.com":           storage.SourceNews,
	"bbc.com":              storage.SourceNews,
	"nytimes.com":          storage.SourceNews,
	"theguardian.com":      storage.SourceNews,
}

// categorizeURL infers a SourceCategory from rawURL's host against
// domainCategoryMap. Any ".gov" host is OFFICIAL regardless of the map.
// fallback (the provider-supplied category, if any) is used for hosts the
// map doesn't recognize; an empty fallback defaults to SourceNews.
func categorizeURL(rawURL string, fallback storage.SourceCategory) storage.SourceCategory {
	host := hostOf(rawURL)
	if host == "" {
		return orDefault(fallback)
	}

	if strings.HasSuffix(host, ".gov") {
		return storage.SourceOfficial
	}

	if cat, ok := domainCategoryMap[host]; ok {
		return cat
	}

	return orDefault(fallback)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}

func orDefault(fallback storage.SourceCategory) storage.SourceCategory {
	if fallback != "" {
		return fallback
	}

	return storage.SourceNews
}
