package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAML(t *testing.T) {
	t.Chdir(t.TempDir())
	p := writeFile(t, ".", "edgezip.yaml", `
prefix: /srv/fn
log:
  level: debug
build:
  concurrency: 4
  transpile: true
  allow_remote: true
  remote_timeout: 5s
store:
  kind: s3
  s3:
    endpoint: localhost:9000
    bucket: archives
server:
  cache_ttl: 1m
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != "/srv/fn" || cfg.Log.Level != "debug" {
		t.Errorf("prefix/log = %q/%q", cfg.Prefix, cfg.Log.Level)
	}
	if cfg.Build.Concurrency != 4 || !cfg.Build.Transpile || !cfg.Build.AllowRemote {
		t.Errorf("build = %+v", cfg.Build)
	}
	if cfg.Build.RemoteTimeout != 5*time.Second {
		t.Errorf("remote_timeout = %v", cfg.Build.RemoteTimeout)
	}
	if cfg.Store.Kind != "s3" || cfg.Store.S3.Bucket != "archives" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Server.CacheTTL != time.Minute {
		t.Errorf("cache_ttl = %v", cfg.Server.CacheTTL)
	}
	// Untouched fields keep defaults.
	if cfg.Server.MaxResponseBytes != Default().Server.MaxResponseBytes {
		t.Errorf("max_response_bytes = %d", cfg.Server.MaxResponseBytes)
	}
	if cfg.Build.RemoteRetries != 3 {
		t.Errorf("remote_retries = %d", cfg.Build.RemoteRetries)
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Chdir(t.TempDir())
	p := writeFile(t, ".", "edgezip.toml", `
prefix = "/app"

[build]
concurrency = 2

[store]
kind = "memory"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != "/app" || cfg.Build.Concurrency != 2 || cfg.Store.Kind != "memory" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Store.Dir != ".edgezip" {
		t.Errorf("store dir = %q", cfg.Store.Dir)
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != "/" || cfg.Store.Kind != "disk" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("nope.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_Malformed(t *testing.T) {
	t.Chdir(t.TempDir())
	p := writeFile(t, ".", "bad.yaml", "build: [unclosed")
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_ZeroValuesRestored(t *testing.T) {
	t.Chdir(t.TempDir())
	p := writeFile(t, ".", "edgezip.yaml", "build:\n  concurrency: 0\nserver:\n  cache_entries: -1\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Build.Concurrency != 8 || cfg.Server.CacheEntries != 32 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EDGEZIP_STORE_KIND", "")
	os.Unsetenv("EDGEZIP_STORE_KIND")
	writeFile(t, ".", ".env", "EDGEZIP_STORE_KIND=memory\nEDGEZIP_S3_BUCKET=from-dotenv\n")
	t.Cleanup(func() {
		os.Unsetenv("EDGEZIP_STORE_KIND")
		os.Unsetenv("EDGEZIP_S3_BUCKET")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Kind != "memory" || cfg.Store.S3.Bucket != "from-dotenv" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"EDGEZIP_PREFIX":               "/env",
		"EDGEZIP_BUILD_CONCURRENCY":    "16",
		"EDGEZIP_BUILD_TRANSPILE":      "true",
		"EDGEZIP_BUILD_REMOTE_TIMEOUT": "2s",
		"EDGEZIP_SERVER_CACHE_TTL":     "30s",
		"AWS_ACCESS_KEY_ID":            "aws-key",
		"EDGEZIP_S3_SECRET_KEY":        "zip-secret",
		"AWS_SECRET_ACCESS_KEY":        "aws-secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Prefix != "/env" || cfg.Build.Concurrency != 16 || !cfg.Build.Transpile {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Build.RemoteTimeout != 2*time.Second || cfg.Server.CacheTTL != 30*time.Second {
		t.Errorf("durations = %v %v", cfg.Build.RemoteTimeout, cfg.Server.CacheTTL)
	}
	if cfg.Store.S3.AccessKey != "aws-key" {
		t.Errorf("access key = %q", cfg.Store.S3.AccessKey)
	}
	if cfg.Store.S3.SecretKey != "zip-secret" {
		t.Errorf("secret key = %q", cfg.Store.S3.SecretKey)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad int", "EDGEZIP_BUILD_CONCURRENCY", "many"},
		{"bad bool", "EDGEZIP_BUILD_TRANSPILE", "maybe"},
		{"bad duration", "EDGEZIP_SERVER_CACHE_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == tt.key {
					return tt.val, true
				}
				return "", false
			}
			if err := Default().applyEnv(lookup); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}
