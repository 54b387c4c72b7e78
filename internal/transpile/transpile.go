// Package transpile emits JavaScript from TypeScript and JSX modules with an
// external source map that embeds the original text.
package transpile

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var ErrTranspile = errors.New("edgezip: transpile failed")

// MediaTypeJavaScript is the content type of emitted modules.
const MediaTypeJavaScript = "application/javascript"

// Result is the emitted module.
type Result struct {
	Code      []byte
	SourceMap []byte
}

var loaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".mts": api.LoaderTS,
	".cts": api.LoaderTS,
	".tsx": api.LoaderTSX,
	".jsx": api.LoaderJSX,
}

// Applies reports whether spec names a module that needs transpiling.
func Applies(spec string) bool {
	_, ok := loaderFor(spec)
	return ok
}

func loaderFor(spec string) (api.Loader, bool) {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		spec = spec[:i]
	}
	l, ok := loaders[strings.ToLower(path.Ext(spec))]
	return l, ok
}

// Transpile converts src to ES module JavaScript. The source map's sources[0]
// is spec and sourcesContent[0] is src verbatim.
func Transpile(spec string, src []byte) (*Result, error) {
	loader, ok := loaderFor(spec)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no loader for extension", ErrTranspile, spec)
	}

	res := api.Transform(string(src), api.TransformOptions{
		Loader:         loader,
		Format:         api.FormatESModule,
		Target:         api.ESNext,
		Sourcefile:     spec,
		Sourcemap:      api.SourceMapExternal,
		SourcesContent: api.SourcesContentInclude,
	})
	if len(res.Errors) > 0 {
		fe := res.Errors[0]
		if fe.Location != nil {
			return nil, fmt.Errorf("%w: %s:%d:%d: %s", ErrTranspile, spec, fe.Location.Line, fe.Location.Column, fe.Text)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrTranspile, spec, fe.Text)
	}

	return &Result{Code: res.Code, SourceMap: res.Map}, nil
}
