// Package sourcemap recovers original module text from transpiled output and
// its source map.
package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrMalformedSourceMap = errors.New("edgezip: malformed source map")

const (
	// MediaTypeTypeScript is reported when text comes from sourcesContent.
	MediaTypeTypeScript = "application/typescript"
	// MediaTypeText is reported when the original language is unknown.
	MediaTypeText = "text/plain"
)

// SourceMap is the subset of the v3 source map format edgezip reads and writes.
type SourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// Recovered is the outcome of Recover.
type Recovered struct {
	Text      string
	MediaType string
	// FromSourceMap is true when Text came from sourcesContent.
	FromSourceMap bool
}

// Parse validates the version, sources, names and mappings fields of data
// and decodes it.
func Parse(data []byte) (*SourceMap, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedSourceMap)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedSourceMap)
	}
	checks := []struct {
		field string
		ok    func(gjson.Result) bool
		want  string
	}{
		{"version", func(r gjson.Result) bool { return r.Type == gjson.Number }, "number"},
		{"sources", gjson.Result.IsArray, "array"},
		{"names", gjson.Result.IsArray, "array"},
		{"mappings", func(r gjson.Result) bool { return r.Type == gjson.String }, "string"},
	}
	for _, c := range checks {
		r := root.Get(c.field)
		if !r.Exists() {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedSourceMap, c.field)
		}
		if !c.ok(r) {
			return nil, fmt.Errorf("%w: %q must be a %s", ErrMalformedSourceMap, c.field, c.want)
		}
	}

	var sm SourceMap
	// sourcesContent is read separately; its entries are never validated.
	aux := struct {
		*SourceMap
		SourcesContent json.RawMessage `json:"sourcesContent"`
	}{SourceMap: &sm}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSourceMap, err)
	}
	sm.SourcesContent = sourcesContent(root.Get("sourcesContent"))
	return &sm, nil
}

// sourcesContent keeps string entries and maps everything else to nil. A
// value that is not an array yields no entries.
func sourcesContent(r gjson.Result) []*string {
	if !r.IsArray() {
		return nil
	}
	var out []*string
	for _, e := range r.Array() {
		if e.Type != gjson.String {
			out = append(out, nil)
			continue
		}
		s := e.String()
		out = append(out, &s)
	}
	return out
}

// Recover returns the original text of a module.
//
// Only sourcesContent[0] is consulted: every module is assumed to be emitted
// from exactly one original source. Multi-source maps are not merged.
func Recover(moduleText string, sourceMap []byte) (Recovered, error) {
	fallback := Recovered{Text: moduleText, MediaType: MediaTypeText}
	if len(strings.TrimSpace(string(sourceMap))) == 0 {
		return fallback, nil
	}
	sm, err := Parse(sourceMap)
	if err != nil {
		return fallback, err
	}
	if len(sm.SourcesContent) == 0 || sm.SourcesContent[0] == nil {
		return fallback, nil
	}
	return Recovered{
		Text:          *sm.SourcesContent[0],
		MediaType:     MediaTypeTypeScript,
		FromSourceMap: true,
	}, nil
}
