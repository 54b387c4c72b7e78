// Package loader fetches module content for the archive builder.
//
// A Loader is a closed variant over two kinds of source: the caller-supplied
// local file set (file: specifiers) and the network (http: and https:
// specifiers). Callers only see Load; which kind serves a specifier is decided
// internally from its scheme.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dejo1307/edgezip/internal/specifier"
)

var (
	ErrFileNotFound = errors.New("edgezip: file not found")
	ErrFetch        = errors.New("edgezip: fetch failed")
)

// HeaderContentType is the header every loaded module carries.
const HeaderContentType = "content-type"

// Header is a single metadata entry. Modules keep headers as an ordered list.
type Header struct {
	Key   string
	Value string
}

// Module is the result of loading one specifier.
type Module struct {
	Specifier string
	Headers   []Header
	Content   []byte
	// SourceMap is set when the content source already provides one.
	SourceMap []byte
}

// Header returns the value of the first header named key.
func (m *Module) Header(key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// ContentType returns the module's content-type header.
func (m *Module) ContentType() string {
	return m.Header(HeaderContentType)
}

// FetchError reports a non-2xx response from a remote module.
type FetchError struct {
	Specifier string
	Status    int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%v: %s: status %d %s", ErrFetch, e.Specifier, e.Status, http.StatusText(e.Status))
}

func (e *FetchError) Unwrap() error { return ErrFetch }

// Retryable reports whether a later attempt could succeed.
func (e *FetchError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// File is a caller-supplied local module.
type File struct {
	Content   []byte
	MediaType string
	// SourceMap is stored alongside Content when set.
	SourceMap []byte
}

// Fetcher loads remote modules. *Remote implements it; Retrying wraps one.
type Fetcher interface {
	Fetch(ctx context.Context, specifier string) (*Module, error)
}

// Loader dispatches a specifier to its local file set or remote fetcher.
type Loader struct {
	local  *Local
	remote Fetcher
}

// New creates a Loader. A nil remote disables network specifiers, which then
// fail with specifier.ErrUnsupportedScheme.
func New(local *Local, remote Fetcher) *Loader {
	if local == nil {
		local = NewLocal(nil)
	}
	return &Loader{local: local, remote: remote}
}

// Load returns the content and metadata for specifier.
func (l *Loader) Load(ctx context.Context, spec string) (*Module, error) {
	scheme, err := specifier.SchemeOf(spec)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case specifier.Local:
		return l.local.Load(spec)
	case specifier.Remote:
		if l.remote == nil {
			return nil, fmt.Errorf("%w: remote modules disabled: %s", specifier.ErrUnsupportedScheme, spec)
		}
		return l.remote.Fetch(ctx, spec)
	default:
		return nil, fmt.Errorf("%w: %s", specifier.ErrUnsupportedScheme, spec)
	}
}
