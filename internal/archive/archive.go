// Package archive implements the edgezip container: a single binary artifact
// holding every module reachable from a set of roots.
//
// Build produces an archive from a ModuleLoader; Decoder, Parse and
// ParseReader read one back.
package archive

import (
	"fmt"

	"github.com/dejo1307/edgezip/internal/specifier"
)

// HeaderContentType is the header every record carries.
const HeaderContentType = "content-type"

// Header is one metadata entry of a record. Records keep insertion order.
type Header struct {
	Key   string
	Value string
}

// Module is one record of an archive.
type Module struct {
	Specifier string
	Headers   []Header
	Content   []byte
	SourceMap []byte
}

// Header returns the value of the first header named key.
func (m *Module) Header(key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Archive is a decoded archive. It is immutable and safe for concurrent reads.
type Archive struct {
	modules []Module
	index   map[string]int
}

func newArchive(modules []Module) *Archive {
	a := &Archive{modules: modules, index: make(map[string]int, len(modules))}
	for i, m := range modules {
		a.index[m.Specifier] = i
	}
	return a
}

// Len returns the number of records.
func (a *Archive) Len() int {
	return len(a.modules)
}

// Specifiers returns every record's specifier in archive order.
func (a *Archive) Specifiers() []string {
	out := make([]string, len(a.modules))
	for i, m := range a.modules {
		out[i] = m.Specifier
	}
	return out
}

// LocalSpecifiers returns the specifiers of local-content records, the ones
// extraction turns back into files.
func (a *Archive) LocalSpecifiers() []string {
	var out []string
	for _, m := range a.modules {
		if specifier.IsLocal(m.Specifier) {
			out = append(out, m.Specifier)
		}
	}
	return out
}

// Module returns the record for spec.
func (a *Archive) Module(spec string) (*Module, bool) {
	i, ok := a.index[spec]
	if !ok {
		return nil, false
	}
	return &a.modules[i], true
}

// ModuleSource returns the stored text of spec.
func (a *Archive) ModuleSource(spec string) (string, error) {
	m, ok := a.Module(spec)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSpecifierNotFound, spec)
	}
	return string(m.Content), nil
}

// ModuleSourceMap returns the source map stored for spec, if any.
func (a *Archive) ModuleSourceMap(spec string) ([]byte, bool) {
	m, ok := a.Module(spec)
	if !ok || len(m.SourceMap) == 0 {
		return nil, false
	}
	return m.SourceMap, true
}
