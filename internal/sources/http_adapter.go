package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/newsintel/searchcore/internal/query"
)

// HTTPAdapter queries an external web-search provider's HTTP API and maps
// its response into Items. Built on net/http's standard client/request
// idiom, the same shape internal/dispatch.HTTPPublisher uses for outbound
// requests — this package is the other direction (inbound search results
// rather than outbound task dispatch) of the same client pattern.
type HTTPAdapter struct {
	id      string
	client  *http.Client
	baseURL string
}

// NewHTTPAdapter builds an HTTPAdapter identified by id, querying baseURL
// (a GET endpoint accepting ?q=&since=&until=) with the given timeout.
func NewHTTPAdapter(id, baseURL string, timeout time.Duration) *HTTPAdapter {
	return &HTTPAdapter{
		id:      id,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// ID implements Adapter.
func (a *HTTPAdapter) ID() string { return a.id }

type httpAdapterResponseItem struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	PublishedAt *time.Time `json:"publishedAt"`
}

// Fetch implements Adapter, issuing a GET against baseURL and decoding a
// JSON array of result items. priorityURLs are passed through as a
// repeated "priority" query parameter so a provider that supports seeded
// crawling can honor them.
func (a *HTTPAdapter) Fetch(ctx context.Context, q query.NormalizedQuery, priorityURLs []string) (PartialResult, error) {
	reqURL, err := a.buildURL(q, priorityURLs)
	if err != nil {
		return PartialResult{}, fmt.Errorf("build request url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return PartialResult{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return PartialResult{}, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return PartialResult{}, fmt.Errorf("provider %s returned status %d", a.id, resp.StatusCode)
	}

	var raw []httpAdapterResponseItem

	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return PartialResult{}, fmt.Errorf("decode response: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, Item{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Snippet,
			PublishedAt: r.PublishedAt,
		})
	}

	return PartialResult{Items: items}, nil
}

func (a *HTTPAdapter) buildURL(q query.NormalizedQuery, priorityURLs []string) (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", err
	}

	values := u.Query()
	values.Set("q", q.Q)

	if q.Since != nil {
		values.Set("since", q.Since.Format(time.RFC3339))
	}

	if q.Until != nil {
		values.Set("until", q.Until.Format(time.RFC3339))
	}

	for _, p := range priorityURLs {
		values.Add("priority", p)
	}

	u.RawQuery = values.Encode()

	return u.String(), nil
}
