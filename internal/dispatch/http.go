package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPublisher dispatches task requests to a per-provider URL via POST,
// built directly on net/http's standard client/request idiom.
type HTTPPublisher struct {
	client       *http.Client
	providerURLs map[string]string
}

// NewHTTPPublisher builds an HTTPPublisher routing each providerId to its
// configured URL.
func NewHTTPPublisher(providerURLs map[string]string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		client:       &http.Client{Timeout: timeout},
		providerURLs: providerURLs,
	}
}

// Dispatch POSTs req as JSON to ProviderID's configured URL.
func (p *HTTPPublisher) Dispatch(ctx context.Context, req TaskRequest) error {
	url, ok := p.providerURLs[req.ProviderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, req.ProviderID)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal task request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build task request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send task request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider %s rejected task request: status %d", req.ProviderID, resp.StatusCode)
	}

	return nil
}
