package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dejo1307/edgezip/internal/graph"
	"github.com/dejo1307/edgezip/internal/loader"
	"github.com/dejo1307/edgezip/internal/scan"
	"github.com/dejo1307/edgezip/internal/sourcemap"
	"github.com/dejo1307/edgezip/internal/specifier"
	"github.com/dejo1307/edgezip/internal/transpile"
)

// ModuleLoader supplies module content to Build. *loader.Loader implements it.
type ModuleLoader interface {
	Load(ctx context.Context, specifier string) (*loader.Module, error)
}

// BuildResult is the output of a successful build.
type BuildResult struct {
	Archive []byte
	Graph   *graph.Graph
	Modules int
}

// loaded is one module after load, transpile and scan.
type loaded struct {
	record Module
	refs   []scan.Reference
	remote bool
}

// Build loads every module reachable from roots and serializes them into one
// archive. Modules are discovered in waves: all specifiers found in one wave
// are loaded concurrently in the next, each exactly once. Any load, scan or
// resolve failure aborts the build; no partial archive is returned.
func Build(ctx context.Context, roots []string, l ModuleLoader, opts ...BuildOption) (*BuildResult, error) {
	cfg := newBuildConfig(opts)
	start := time.Now()

	g := graph.New()
	seen := make(map[string]bool)
	var frontier []string
	for _, r := range roots {
		if seen[r] {
			continue
		}
		seen[r] = true
		g.AddRoot(r)
		frontier = append(frontier, r)
	}
	if len(frontier) == 0 {
		return nil, ErrNothingToBuild
	}

	var records []Module
	for wave := 0; len(frontier) > 0; wave++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg.logger.Debug("loading wave", "wave", wave, "modules", len(frontier))

		results := make([]*loaded, len(frontier))
		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(cfg.concurrency)
		for i, spec := range frontier {
			eg.Go(func() error {
				res, err := loadOne(egctx, l, spec, &cfg)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, res := range results {
			rec := res.record
			records = append(records, rec)
			ct, _ := rec.Header(HeaderContentType)
			g.AddNode(graph.Node{
				Specifier:   rec.Specifier,
				Remote:      res.remote,
				ContentType: ct,
				Size:        len(rec.Content),
			})
			targets, err := addEdges(g, rec.Specifier, res.refs)
			if err != nil {
				return nil, err
			}
			for _, target := range targets {
				if !seen[target] {
					seen[target] = true
					next = append(next, target)
				}
			}
		}
		frontier = next
	}

	if err := checkComplete(g); err != nil {
		return nil, err
	}
	data, err := Marshal(records, WithWriteLimits(cfg.limits))
	if err != nil {
		return nil, err
	}

	cfg.logger.Info("archive built",
		"modules", len(records),
		"edges", g.EdgeCount(),
		"bytes", len(data),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &BuildResult{Archive: data, Graph: g, Modules: len(records)}, nil
}

func loadOne(ctx context.Context, l ModuleLoader, spec string, cfg *buildConfig) (*loaded, error) {
	mod, err := l.Load(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", spec, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := Module{
		Specifier: spec,
		Headers:   make([]Header, 0, len(mod.Headers)),
		Content:   mod.Content,
		SourceMap: mod.SourceMap,
	}
	for _, h := range mod.Headers {
		rec.Headers = append(rec.Headers, Header{Key: h.Key, Value: h.Value})
	}
	res := &loaded{record: rec, remote: !specifier.IsLocal(spec)}

	dialect, script := scan.DialectFor(spec, mod.ContentType())
	if !script {
		return res, nil
	}

	// Local content is stored as given; only fetched modules have their
	// inline map lifted into the record.
	if res.remote && len(res.record.SourceMap) == 0 {
		sm, ok, err := sourcemap.DecodeInline(string(mod.Content))
		switch {
		case err != nil:
			cfg.logger.Warn("ignoring inline source map", "specifier", spec, "err", err)
		case ok:
			res.record.SourceMap = sm
		}
	}

	refs, err := scan.Scan(mod.Content, dialect)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", spec, err)
	}
	res.refs = refs

	if cfg.transpile && !res.remote && transpile.Applies(spec) {
		out, err := cfg.transpiler(spec, mod.Content)
		if err != nil {
			return nil, err
		}
		res.record.Content = out.Code
		res.record.SourceMap = out.SourceMap
		res.record.Headers = setHeader(res.record.Headers, HeaderContentType, transpile.MediaTypeJavaScript)
	}
	return res, nil
}

// addEdges resolves refs against spec and records one edge per reference.
// Builtins are skipped. The resolved targets are returned in reference order.
func addEdges(g *graph.Graph, spec string, refs []scan.Reference) ([]string, error) {
	targets := make([]string, 0, len(refs))
	for _, ref := range refs {
		if specifier.IsBuiltin(ref.Specifier) {
			continue
		}
		target, err := specifier.Resolve(spec, ref.Specifier)
		if err != nil {
			return nil, fmt.Errorf("resolving %q in %s (line %d): %w", ref.Specifier, spec, ref.Line, err)
		}
		g.AddEdge(spec, ref.Kind.String(), target)
		targets = append(targets, target)
	}
	return targets, nil
}

// checkComplete fails when an edge points at a module the graph never loaded.
func checkComplete(g *graph.Graph) error {
	if d := g.Dangling(); len(d) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteGraph, strings.Join(d, ", "))
	}
	return nil
}

func setHeader(hs []Header, key, value string) []Header {
	for i := range hs {
		if hs[i].Key == key {
			hs[i].Value = value
			return hs
		}
	}
	return append(hs, Header{Key: key, Value: value})
}
