// Package fetcher executes a query against the upstream Overpass endpoint
// and streams the response straight to disk.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/core/observability"
)

type Fetcher struct {
	client    *http.Client
	url       string
	userAgent string
	now       func() time.Time // overridable for tests
}

func New(client *http.Client, overpassURL, userAgent string) *Fetcher {
	return &Fetcher{client: client, url: overpassURL, userAgent: userAgent, now: time.Now}
}

// snippetLimit bounds how much of a failing upstream body is retained in
// the FetchFailedError for logging.
const snippetLimit = 4 << 10

// Fetch POSTs query as the "data" form field and streams the response
// body directly into outputPath, without buffering it in memory.
func (f *Fetcher) Fetch(ctx context.Context, query, outputPath string) error {
	form := url.Values{"data": {query}}
	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", f.userAgent)

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetcher: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("overpass", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		return &apperr.FetchFailedError{Status: resp.StatusCode, Body: string(snippet)}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("fetcher: create output file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("fetcher: stream response body: %w", err)
	}
	return nil
}
