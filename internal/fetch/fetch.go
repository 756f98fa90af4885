// Package fetch produces raw record lists for a source.
//
// Two fetchers exist: JSON reads a JSON array of flat objects from a URL or
// a local file, and HTML extracts records from a static page with CSS
// selectors. Both honour the caller's context for cancellation and deadline.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/roach88/changewatch/internal/record"
)

const (
	// DefaultUserAgent identifies the monitor to remote servers.
	DefaultUserAgent = "changewatch/1.0 (+https://github.com/roach88/changewatch)"
	// DefaultTimeout caps a single HTTP request when the context has no deadline.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes bounds how much of a response is read.
	DefaultMaxBodyBytes = 32 << 20
)

// Fetcher produces the current records of one source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]record.Record, error)
}

// Option configures a fetcher.
type Option func(*loader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(l *loader) {
		l.client = client
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(l *loader) {
		l.userAgent = ua
	}
}

// WithMaxBodyBytes overrides the response size limit. A larger response
// fails the fetch instead of being truncated.
func WithMaxBodyBytes(n int64) Option {
	return func(l *loader) {
		if n > 0 {
			l.maxBody = n
		}
	}
}

// loader reads raw bytes from an http(s) URL, a file:// URL or a plain path.
type loader struct {
	location  string
	client    *http.Client
	userAgent string
	maxBody   int64
}

func newLoader(location string, opts ...Option) *loader {
	l := &loader{
		location:  location,
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *loader) isRemote() bool {
	return strings.HasPrefix(l.location, "http://") || strings.HasPrefix(l.location, "https://")
}

func (l *loader) load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.isRemote() {
		path := strings.TrimPrefix(l.location, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", l.location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", l.location, resp.StatusCode)
	}

	// One byte past the limit tells a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > l.maxBody {
		return nil, fmt.Errorf("fetch %s: response exceeds %d bytes", l.location, l.maxBody)
	}
	return body, nil
}
