// Package bundle is the file-level API over the archive codec: it turns named
// source files into an archive and an archive back into named files.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/loader"
	"github.com/dejo1307/edgezip/internal/normalize"
	"github.com/dejo1307/edgezip/internal/sourcemap"
	"github.com/dejo1307/edgezip/internal/specifier"
)

// SourceFile is a named blob of module text.
type SourceFile struct {
	Name      string `json:"name"`
	Content   []byte `json:"content"`
	MediaType string `json:"media_type"`
	// SourceMap is an optional map for Content. Extraction returns its
	// first sourcesContent entry in place of Content.
	SourceMap []byte `json:"source_map,omitempty"`
}

// Files builds an archive from files. Every file is a root unless
// WithEntrypoints narrows the roots; files not reachable from an entrypoint
// are left out.
func Files(ctx context.Context, files []SourceFile, opts ...Option) (*archive.BuildResult, error) {
	cfg := newConfig(opts)

	set := make(map[string]loader.File, len(files))
	byName := make(map[string]string, len(files))
	var roots []string
	for _, f := range files {
		spec, err := specifier.ToSpecifier(cfg.prefix, f.Name)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Name, err)
		}
		if _, dup := set[spec]; dup {
			return nil, fmt.Errorf("%w: duplicate file %q", specifier.ErrInvalidSpecifier, f.Name)
		}
		set[spec] = loader.File{Content: f.Content, MediaType: mediaTypeOf(f), SourceMap: f.SourceMap}
		byName[f.Name] = spec
		roots = append(roots, spec)
	}

	if len(cfg.entrypoints) > 0 {
		roots = roots[:0]
		for _, name := range cfg.entrypoints {
			spec, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: entrypoint %q is not among the files", loader.ErrFileNotFound, name)
			}
			roots = append(roots, spec)
		}
	}

	l := loader.New(loader.NewLocal(set), cfg.remote)
	return archive.Build(ctx, roots, l, cfg.buildOpts...)
}

// mediaTypes maps source extensions to the media type recorded for them.
var mediaTypes = map[string]string{
	".ts":   sourcemap.MediaTypeTypeScript,
	".mts":  sourcemap.MediaTypeTypeScript,
	".cts":  sourcemap.MediaTypeTypeScript,
	".tsx":  "text/tsx",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".cjs":  "application/javascript",
	".jsx":  "text/jsx",
	".json": "application/json",
}

// MediaTypeFor returns the media type for a file name by its extension.
// ok is false for extensions that are not module sources.
func MediaTypeFor(name string) (mt string, ok bool) {
	mt, ok = mediaTypes[strings.ToLower(path.Ext(name))]
	return mt, ok
}

func mediaTypeOf(f SourceFile) string {
	if f.MediaType != "" {
		return f.MediaType
	}
	if mt, ok := MediaTypeFor(f.Name); ok {
		return mt
	}
	return sourcemap.MediaTypeText
}

// Extract reconstructs the local files stored in an archive.
func Extract(ctx context.Context, data []byte, opts ...Option) ([]SourceFile, error) {
	cfg := newConfig(opts)
	a, err := archive.Parse(data, cfg.readOpts...)
	if err != nil {
		return nil, err
	}
	return extract(ctx, a, cfg)
}

// ExtractReader is Extract over a stream.
func ExtractReader(ctx context.Context, r io.Reader, opts ...Option) ([]SourceFile, error) {
	cfg := newConfig(opts)
	a, err := archive.ParseReader(ctx, r, cfg.readOpts...)
	if err != nil {
		return nil, err
	}
	return extract(ctx, a, cfg)
}

func extract(ctx context.Context, a *archive.Archive, cfg config) ([]SourceFile, error) {
	specs := a.LocalSpecifiers()
	out := make([]SourceFile, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := extractOne(a, spec, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	cfg.logger.Debug("extracted", "files", len(out), "modules", a.Len())
	return out, nil
}

func extractOne(a *archive.Archive, spec string, cfg config) (SourceFile, error) {
	name, err := specifier.FromSpecifier(cfg.prefix, spec)
	if err != nil {
		return SourceFile{}, err
	}
	if cfg.deploymentID != "" {
		name, err = deploymentName(cfg.deploymentID, spec, name)
		if err != nil {
			return SourceFile{}, err
		}
	}

	text, err := a.ModuleSource(spec)
	if err != nil {
		return SourceFile{}, err
	}
	sm, _ := a.ModuleSourceMap(spec)

	rec, err := sourcemap.Recover(text, sm)
	if err != nil {
		if !errors.Is(err, sourcemap.ErrMalformedSourceMap) {
			return SourceFile{}, err
		}
		cfg.logger.Warn("source map ignored", "specifier", spec, "err", err)
	}

	mediaType := rec.MediaType
	if cfg.declaredMediaType && !rec.FromSourceMap {
		if m, ok := a.Module(spec); ok {
			if ct, ok := m.Header(archive.HeaderContentType); ok && ct != "" {
				mediaType = ct
			}
		}
	}

	return SourceFile{Name: name, Content: []byte(rec.Text), MediaType: mediaType}, nil
}

// deploymentName normalizes name for deployment id. Files stored under the
// deployment root are normalized from their absolute path, whatever the
// extraction prefix.
func deploymentName(id, spec, name string) (string, error) {
	rel, err := specifier.FromSpecifier("/", spec)
	if err != nil {
		return "", err
	}
	if abs := "/" + rel; strings.HasPrefix(abs, normalize.DeploymentPrefix(id)) {
		return normalize.Name(id, abs), nil
	}
	return normalize.Name(id, name), nil
}
