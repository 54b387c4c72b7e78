package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "edgezip.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EDGEZIP_"

// Config represents the edgezip.yaml configuration.
type Config struct {
	Prefix string       `yaml:"prefix" toml:"prefix"`
	Log    LogConfig    `yaml:"log" toml:"log"`
	Build  BuildConfig  `yaml:"build" toml:"build"`
	Store  StoreConfig  `yaml:"store" toml:"store"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// BuildConfig controls archive construction and remote module loading.
type BuildConfig struct {
	Concurrency    int           `yaml:"concurrency" toml:"concurrency"`
	Transpile      bool          `yaml:"transpile" toml:"transpile"`
	AllowRemote    bool          `yaml:"allow_remote" toml:"allow_remote"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout" toml:"remote_timeout"`
	RemoteRetries  int           `yaml:"remote_retries" toml:"remote_retries"`
	MaxRemoteBytes int64         `yaml:"max_remote_bytes" toml:"max_remote_bytes"`
}

// StoreConfig selects where built archives are kept.
type StoreConfig struct {
	Kind string   `yaml:"kind" toml:"kind"`
	Dir  string   `yaml:"dir" toml:"dir"`
	S3   S3Config `yaml:"s3" toml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	Region    string `yaml:"region" toml:"region"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
}

// ServerConfig bounds MCP tool responses.
type ServerConfig struct {
	MaxResponseBytes int           `yaml:"max_response_bytes" toml:"max_response_bytes"`
	CacheEntries     int           `yaml:"cache_entries" toml:"cache_entries"`
	CacheTTL         time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Prefix: "/",
		Log:    LogConfig{Level: "info"},
		Build: BuildConfig{
			Concurrency:    8,
			RemoteTimeout:  30 * time.Second,
			RemoteRetries:  3,
			MaxRemoteBytes: 32 << 20,
		},
		Store: StoreConfig{
			Kind: "disk",
			Dir:  ".edgezip",
		},
		Server: ServerConfig{
			MaxResponseBytes: 256 << 10,
			CacheEntries:     32,
			CacheTTL:         10 * time.Minute,
		},
	}
}

// Load reads a configuration file from the given path. Files ending in
// .toml are decoded as TOML, everything else as YAML. A missing file at
// DefaultPath yields the defaults. Environment overrides are applied last,
// after loading a .env file from the working directory if one exists.
// Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.fillDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// fillDefaults restores zero values a file may have cleared.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Prefix == "" {
		c.Prefix = d.Prefix
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Build.Concurrency <= 0 {
		c.Build.Concurrency = d.Build.Concurrency
	}
	if c.Build.RemoteTimeout <= 0 {
		c.Build.RemoteTimeout = d.Build.RemoteTimeout
	}
	if c.Build.MaxRemoteBytes <= 0 {
		c.Build.MaxRemoteBytes = d.Build.MaxRemoteBytes
	}
	if c.Store.Kind == "" {
		c.Store.Kind = d.Store.Kind
	}
	if c.Store.Dir == "" {
		c.Store.Dir = d.Store.Dir
	}
	if c.Server.MaxResponseBytes <= 0 {
		c.Server.MaxResponseBytes = d.Server.MaxResponseBytes
	}
	if c.Server.CacheEntries <= 0 {
		c.Server.CacheEntries = d.Server.CacheEntries
	}
	if c.Server.CacheTTL <= 0 {
		c.Server.CacheTTL = d.Server.CacheTTL
	}
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays EDGEZIP_* variables. The standard AWS credential
// variables are honored when the EDGEZIP_ ones are unset.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("PREFIX", &c.Prefix)
	str("LOG_LEVEL", &c.Log.Level)
	integer("BUILD_CONCURRENCY", &c.Build.Concurrency)
	boolean("BUILD_TRANSPILE", &c.Build.Transpile)
	boolean("BUILD_ALLOW_REMOTE", &c.Build.AllowRemote)
	duration("BUILD_REMOTE_TIMEOUT", &c.Build.RemoteTimeout)
	integer("BUILD_REMOTE_RETRIES", &c.Build.RemoteRetries)
	str("STORE_KIND", &c.Store.Kind)
	str("STORE_DIR", &c.Store.Dir)
	str("S3_ENDPOINT", &c.Store.S3.Endpoint)
	str("S3_REGION", &c.Store.S3.Region)
	str("S3_BUCKET", &c.Store.S3.Bucket)
	str("S3_PREFIX", &c.Store.S3.Prefix)
	boolean("S3_USE_SSL", &c.Store.S3.UseSSL)
	integer("SERVER_MAX_RESPONSE_BYTES", &c.Server.MaxResponseBytes)
	integer("SERVER_CACHE_ENTRIES", &c.Server.CacheEntries)
	duration("SERVER_CACHE_TTL", &c.Server.CacheTTL)

	if v, ok := lookup("AWS_ACCESS_KEY_ID"); ok && c.Store.S3.AccessKey == "" {
		c.Store.S3.AccessKey = v
	}
	if v, ok := lookup("AWS_SECRET_ACCESS_KEY"); ok && c.Store.S3.SecretKey == "" {
		c.Store.S3.SecretKey = v
	}
	str("S3_ACCESS_KEY", &c.Store.S3.AccessKey)
	str("S3_SECRET_KEY", &c.Store.S3.SecretKey)

	return errors.Join(errs...)
}
