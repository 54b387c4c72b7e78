package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultMaxRemoteBytes caps a single remote module body.
const DefaultMaxRemoteBytes int64 = 32 << 20

// Remote fetches http(s) modules with exactly one request per call.
type Remote struct {
	client   *http.Client
	maxBytes int64
	logger   *log.Logger
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithTimeout sets the per-request client timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.client.Timeout = d }
}

// WithMaxBytes caps the accepted response body size.
func WithMaxBytes(n int64) RemoteOption {
	return func(r *Remote) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *log.Logger) RemoteOption {
	return func(r *Remote) { r.logger = l }
}

// NewRemote creates a Remote backed by a pooled cleanhttp client.
func NewRemote(opts ...RemoteOption) *Remote {
	r := &Remote{
		client:   cleanhttp.DefaultPooledClient(),
		maxBytes: DefaultMaxRemoteBytes,
		logger:   log.WithPrefix("loader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch performs one GET for spec.
func (r *Remote) Fetch(ctx context.Context, spec string) (*Module, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", spec, err)
	}
	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, spec, err)
	}
	defer resp.Body.Close()

	r.logger.Debug("fetched", "specifier", spec, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Specifier: spec, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFetch, spec, err)
	}
	if int64(len(body)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFetch, spec, r.maxBytes)
	}

	return &Module{
		Specifier: spec,
		Headers:   lowerHeaders(resp.Header),
		Content:   body,
	}, nil
}

// lowerHeaders flattens h into lower-cased keys sorted for deterministic output.
// Multi-valued headers are joined with ", ".
func lowerHeaders(h http.Header) []Header {
	out := make([]Header, 0, len(h))
	for k, vs := range h {
		out = append(out, Header{Key: strings.ToLower(k), Value: strings.Join(vs, ", ")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if !hasKey(out, HeaderContentType) {
		out = append(out, Header{Key: HeaderContentType, Value: "application/octet-stream"})
	}
	return out
}

func hasKey(hs []Header, key string) bool {
	for _, h := range hs {
		if h.Key == key {
			return true
		}
	}
	return false
}
