package archive

import (
	"github.com/charmbracelet/log"

	"github.com/dejo1307/edgezip/internal/transpile"
)

type readConfig struct {
	limits Limits
}

// ReadOption configures Decoder, Parse and ParseReader.
type ReadOption func(*readConfig)

func WithReadLimits(l Limits) ReadOption {
	return func(c *readConfig) { c.limits = l }
}

func newReadConfig(opts []ReadOption) readConfig {
	var c readConfig
	for _, opt := range opts {
		opt(&c)
	}
	c.limits = c.limits.withDefaults()
	return c
}

type writeConfig struct {
	limits Limits
}

// WriteOption configures Encode.
type WriteOption func(*writeConfig)

func WithWriteLimits(l Limits) WriteOption {
	return func(c *writeConfig) { c.limits = l }
}

// DefaultConcurrency is the number of loads a build runs at once.
const DefaultConcurrency = 8

type buildConfig struct {
	concurrency int
	transpile   bool
	limits      Limits
	logger      *log.Logger
	transpiler  func(spec string, src []byte) (*transpile.Result, error)
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithConcurrency limits concurrent loads within one discovery wave.
func WithConcurrency(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithTranspile emits JavaScript for local TypeScript and JSX modules and
// stores a source map that embeds the original text.
func WithTranspile(v bool) BuildOption {
	return func(c *buildConfig) { c.transpile = v }
}

// WithBuildLimits sets the limits the written archive must respect.
func WithBuildLimits(l Limits) BuildOption {
	return func(c *buildConfig) { c.limits = l }
}

// WithBuildLogger sets the logger used for build progress.
func WithBuildLogger(l *log.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = l }
}

func newBuildConfig(opts []BuildOption) buildConfig {
	c := buildConfig{
		concurrency: DefaultConcurrency,
		logger:      log.WithPrefix("archive"),
		transpiler:  transpile.Transpile,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.limits = c.limits.withDefaults()
	return c
}
