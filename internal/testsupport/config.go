package testsupport

import (
	"path/filepath"
	"testing"

	"kitsusync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.DatabasePath = filepath.Join(base, "kitsusync.db")
	cfg.Paths.SummaryPath = filepath.Join(base, "summary.csv")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Kitsu.BaseURL = "http://127.0.0.1:0"
	cfg.Kitsu.RetryBackoffMS = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithBaseURL points the Kitsu client at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Kitsu.BaseURL = url
	}
}

// WithPublishDir enables directory-mode publishing into dir.
func WithPublishDir(dir string) ConfigOption {
	return func(c *config.Config) {
		c.Publish.Mode = "directory"
		c.Publish.Dir = dir
	}
}
