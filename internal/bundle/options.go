package bundle

import (
	"github.com/charmbracelet/log"

	"github.com/dejo1307/edgezip/internal/archive"
	"github.com/dejo1307/edgezip/internal/loader"
	"github.com/dejo1307/edgezip/internal/specifier"
)

type config struct {
	prefix            string
	deploymentID      string
	declaredMediaType bool
	entrypoints       []string
	remote            loader.Fetcher
	buildOpts         []archive.BuildOption
	readOpts          []archive.ReadOption
	logger            *log.Logger
}

// Option configures Files, Extract and ExtractReader.
type Option func(*config)

// WithPrefix sets the logical root names are relative to. Default "/".
func WithPrefix(p string) Option {
	return func(c *config) {
		if p != "" {
			c.prefix = p
		}
	}
}

// WithDeploymentID normalizes extracted names recorded under the deployment
// root of id.
func WithDeploymentID(id string) Option {
	return func(c *config) { c.deploymentID = id }
}

// WithDeclaredMediaType reports the stored content-type for files whose text
// did not come from a source map, instead of the generic text type.
func WithDeclaredMediaType(v bool) Option {
	return func(c *config) { c.declaredMediaType = v }
}

// WithEntrypoints limits the build roots to the named files.
func WithEntrypoints(names ...string) Option {
	return func(c *config) { c.entrypoints = append(c.entrypoints, names...) }
}

// WithRemote enables http(s) dependencies, fetched through f.
func WithRemote(f loader.Fetcher) Option {
	return func(c *config) { c.remote = f }
}

// WithBuildOptions passes options through to archive.Build.
func WithBuildOptions(opts ...archive.BuildOption) Option {
	return func(c *config) { c.buildOpts = append(c.buildOpts, opts...) }
}

// WithReadOptions passes options through to the archive parser.
func WithReadOptions(opts ...archive.ReadOption) Option {
	return func(c *config) { c.readOpts = append(c.readOpts, opts...) }
}

// WithLogger sets the logger for extraction warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

func newConfig(opts []Option) config {
	c := config{
		prefix: specifier.DefaultPrefix,
		logger: log.WithPrefix("bundle"),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
