package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	httpTimeout  = 10 * time.Second
	maxClipBytes = 8 << 20
)

// URILoader resolves sound URIs. Absolute http(s) URLs are fetched directly,
// relative paths are resolved against the base URL when one is set and read
// from the local filesystem otherwise.
type URILoader struct {
	base   *url.URL
	client *http.Client
}

// NewLoader creates a URILoader. baseURL may be empty. A nil client gets a
// traced client with a 10s timeout.
func NewLoader(baseURL string, client *http.Client) *URILoader {
	if client == nil {
		client = &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	l := &URILoader{client: client}
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			l.base = u
		}
	}
	return l
}

// Load returns the clip bytes for uri.
func (l *URILoader) Load(ctx context.Context, uri string) ([]byte, error) {
	if uri == FallbackToneURI {
		return FallbackTone(), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse sound uri %q: %w", uri, err)
	}
	if !u.IsAbs() && l.base != nil {
		u = l.base.ResolveReference(u)
	}

	switch u.Scheme {
	case "http", "https":
		return l.fetch(ctx, u.String())
	case "", "file":
		return readFile(u.Path)
	default:
		return nil, fmt.Errorf("unsupported sound uri scheme %q", u.Scheme)
	}
}

func (l *URILoader) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.client.Do(req) //nolint:gosec // G704: sound URLs come from trusted config
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get %s: %w", target, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: status %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return data, nil
}

func readFile(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
