// Package feed fetches, parses and merges RSS/Atom feeds for feed-reader.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTransport marks fetch failures: network errors and non-2xx responses.
var ErrTransport = errors.New("transport error")

// maxBodySize bounds how much of a response is read.
const maxBodySize = 16 << 20

// Getter retrieves the raw body of a feed URL.
type Getter interface {
	Get(ctx context.Context, url string) (string, error)
}

// HTTPGetter is the default Getter.
type HTTPGetter struct {
	client    *http.Client
	userAgent string
}

// NewHTTPGetter creates an HTTPGetter. A zero timeout means no timeout.
func NewHTTPGetter(timeout time.Duration, userAgent string) *HTTPGetter {
	return &HTTPGetter{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get fetches url and returns the response body as text.
func (g *HTTPGetter) Get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: invalid request for %s: %v", ErrTransport, url, err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to fetch %s: %w", ErrTransport, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: fetch %s: http %d", ErrTransport, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body of %s: %w", ErrTransport, url, err)
	}
	return string(body), nil
}
