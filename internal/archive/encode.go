package archive

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/zeebo/xxh3"
)

// Encode writes modules as an archive. Records are written sorted by
// specifier; modules is not modified.
func Encode(w io.Writer, modules []Module, opts ...WriteOption) error {
	var cfg writeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	lim := cfg.limits.withDefaults()

	sorted := append([]Module(nil), modules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Specifier < sorted[j].Specifier })
	if err := validateModules(sorted, lim); err != nil {
		return err
	}

	h := xxh3.New()
	out := io.MultiWriter(w, h)

	hdr := fixedHeader{
		Magic:       magic,
		Version:     formatVersion,
		HeaderSize:  fixedHeaderSize,
		ModuleCount: uint32(len(sorted)),
	}
	if _, err := out.Write(hdr.encode()); err != nil {
		return err
	}

	for _, m := range sorted {
		headers := encodeHeaders(m.Headers)
		rh := recordHeader{
			Marker:       recordMarker,
			SpecLen:      uint32(len(m.Specifier)),
			HeadersLen:   uint32(len(headers)),
			ContentLen:   uint32(len(m.Content)),
			SourceMapLen: uint32(len(m.SourceMap)),
		}
		if len(m.SourceMap) > 0 {
			rh.Flags |= recordFlagSourceMap
		}
		for _, part := range [][]byte{rh.encode(), []byte(m.Specifier), headers, m.Content, m.SourceMap} {
			if _, err := out.Write(part); err != nil {
				return err
			}
		}
	}

	t := trailer{Marker: trailerMarker, Checksum: h.Sum64()}
	_, err := w.Write(t.encode())
	return err
}

// Marshal returns the encoded archive for modules.
func Marshal(modules []Module, opts ...WriteOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, modules, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateModules(sorted []Module, lim Limits) error {
	if len(sorted) > lim.MaxModules {
		return fmt.Errorf("%w: %d modules exceeds limit %d", ErrInvalidModule, len(sorted), lim.MaxModules)
	}
	for i, m := range sorted {
		if m.Specifier == "" {
			return fmt.Errorf("%w: empty specifier", ErrInvalidModule)
		}
		if i > 0 && sorted[i-1].Specifier == m.Specifier {
			return fmt.Errorf("%w: duplicate specifier %s", ErrInvalidModule, m.Specifier)
		}
		if uint64(len(m.Specifier)) > uint64(lim.MaxSpecifierLen) {
			return fmt.Errorf("%w: specifier too long: %d bytes", ErrInvalidModule, len(m.Specifier))
		}
		hl := 0
		for _, h := range m.Headers {
			if h.Key == "" {
				return fmt.Errorf("%w: %s: empty header key", ErrInvalidModule, m.Specifier)
			}
			hl += 8 + len(h.Key) + len(h.Value)
		}
		if uint64(hl) > uint64(lim.MaxHeadersLen) {
			return fmt.Errorf("%w: %s: headers too large: %d bytes", ErrInvalidModule, m.Specifier, hl)
		}
		if uint64(len(m.Content)) > uint64(lim.MaxContentLen) {
			return fmt.Errorf("%w: %s: content too large: %d bytes", ErrInvalidModule, m.Specifier, len(m.Content))
		}
		if uint64(len(m.SourceMap)) > uint64(lim.MaxSourceMapLen) {
			return fmt.Errorf("%w: %s: source map too large: %d bytes", ErrInvalidModule, m.Specifier, len(m.SourceMap))
		}
	}
	return nil
}
