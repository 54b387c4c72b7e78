// Package specifier converts between logical file names and the absolute module
// specifiers stored in an archive.
package specifier

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	ErrInvalidSpecifier  = errors.New("edgezip: invalid specifier")
	ErrUnsupportedScheme = errors.New("edgezip: unsupported scheme")
)

// Scheme classifies a specifier by how its content is obtained.
type Scheme int

const (
	Local Scheme = iota + 1
	Remote
)

func (s Scheme) String() string {
	switch s {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// DefaultPrefix is the logical root used when the caller does not pick one.
const DefaultPrefix = "/"

// ToSpecifier joins prefix and name with forward-slash semantics and renders
// the result as a file URL. name must be relative and already clean, so that
// FromSpecifier returns it unchanged.
func ToSpecifier(prefix, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidSpecifier)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: name %q is absolute", ErrInvalidSpecifier, name)
	}
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("%w: name %q leaves the prefix", ErrInvalidSpecifier, name)
	}
	if path.Clean(name) != name {
		return "", fmt.Errorf("%w: name %q is not clean, want %q", ErrInvalidSpecifier, name, path.Clean(name))
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	p := path.Join(prefix, name)
	u := url.URL{Scheme: "file", Path: p}
	return u.String(), nil
}

// FromSpecifier decodes a file specifier and returns its path relative to prefix.
// Specifiers outside prefix come back as absolute paths.
func FromSpecifier(prefix, specifier string) (string, error) {
	u, err := url.Parse(specifier)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidSpecifier, specifier, err)
	}
	if u.Scheme != "file" {
		if u.Scheme == "" {
			return "", fmt.Errorf("%w: %q has no scheme", ErrInvalidSpecifier, specifier)
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	// url.Parse already decoded percent-escapes into Path.
	p := u.Path
	if prefix == "" {
		prefix = DefaultPrefix
	}
	root := path.Clean("/" + strings.TrimPrefix(prefix, "/"))
	if root == "/" {
		return strings.TrimPrefix(p, "/"), nil
	}
	if rel, ok := strings.CutPrefix(p, root+"/"); ok {
		return rel, nil
	}
	return p, nil
}

// SchemeOf reports whether specifier is served locally or fetched remotely.
func SchemeOf(specifier string) (Scheme, error) {
	u, err := url.Parse(specifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSpecifier, specifier, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return Local, nil
	case "http", "https":
		return Remote, nil
	case "":
		return 0, fmt.Errorf("%w: %q has no scheme", ErrInvalidSpecifier, specifier)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// IsLocal is a convenience wrapper over SchemeOf that treats errors as remote.
func IsLocal(specifier string) bool {
	s, err := SchemeOf(specifier)
	return err == nil && s == Local
}

// IsBuiltin reports references to runtime builtins, which are never bundled.
func IsBuiltin(ref string) bool {
	return strings.HasPrefix(ref, "node:")
}

// Resolve resolves ref, as written inside the module identified by referrer,
// to an absolute specifier.
func Resolve(referrer, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference in %s", ErrInvalidSpecifier, referrer)
	}
	if isPathLike(ref) {
		base, err := url.Parse(referrer)
		if err != nil {
			return "", fmt.Errorf("%w: referrer %q: %v", ErrInvalidSpecifier, referrer, err)
		}
		r, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidSpecifier, ref, err)
		}
		return base.ResolveReference(r).String(), nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Single-letter schemes are Windows drive letters, not URLs.
		return "", fmt.Errorf("%w: bare reference %q in %s", ErrInvalidSpecifier, ref, referrer)
	}
	return u.String(), nil
}

func isPathLike(ref string) bool {
	return strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") || strings.HasPrefix(ref, "/")
}
