// Package fetch implements the Fetcher port over HTTP.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.trai.ch/kiln/internal/build"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

const httpClientTimeout = 10 * time.Minute

// Fetcher implements ports.Fetcher using net/http.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with a bounded overall timeout.
func NewFetcher() *Fetcher {
	return NewFetcherWithClient(&http.Client{
		Timeout: httpClientTimeout,
	})
}

// NewFetcherWithClient creates a Fetcher using client.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{httpClient: client}
}

// Fetch streams the body served at url into dst. Any non-2xx status and an
// empty body are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrRequestFailed.Error()), "url", url)
	}
	req.Header.Set("User-Agent", "kiln/"+build.Version)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrRequestFailed.Error()), "url", url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := zerr.With(domain.ErrUnexpectedStatus, "status_code", resp.StatusCode)
		return 0, zerr.With(statusErr, "url", url)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, zerr.With(zerr.Wrap(err, domain.ErrRequestFailed.Error()), "url", url)
	}
	if n == 0 {
		return 0, zerr.With(domain.ErrEmptyPayload, "url", url)
	}

	return n, nil
}
