package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and artifact location configuration.
type Paths struct {
	CacheDir     string `toml:"cache_dir"`
	DatabasePath string `toml:"database_path"`
	SummaryPath  string `toml:"summary_path"`
	LogDir       string `toml:"log_dir"`
}

// Kitsu contains configuration for the Kitsu catalog API.
type Kitsu struct {
	BaseURL        string `toml:"base_url"`
	PageLimit      int    `toml:"page_limit"`
	RequestTimeout int    `toml:"request_timeout"`
	RatePerMinute  int    `toml:"rate_per_minute"`
	RetryAttempts  int    `toml:"retry_attempts"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
}

// Resolver contains configuration for batch cache-or-fetch resolution.
type Resolver struct {
	Workers int `toml:"workers"`
}

// Publish contains configuration for artifact publishing.
type Publish struct {
	Mode           string `toml:"mode"` // "http", "directory", or "" (disabled)
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	Dir            string `toml:"dir"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for kitsusync.
//
// Configuration sections by subsystem:
//   - Paths: cache directory, database file, summary artifact, log directory
//   - Kitsu: upstream API endpoint, rate limit, and retry policy
//   - Resolver: worker pool sizing for batch resolution
//   - Publish: artifact destination (HTTP endpoint or local directory)
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Kitsu    Kitsu    `toml:"kitsu"`
	Resolver Resolver `toml:"resolver"`
	Publish  Publish  `toml:"publish"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kitsusync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kitsusync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return err
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return err
	}
	if c.Paths.SummaryPath, err = expandPath(c.Paths.SummaryPath); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Publish.Dir) != "" {
		if c.Publish.Dir, err = expandPath(c.Publish.Dir); err != nil {
			return err
		}
	}

	c.Kitsu.BaseURL = strings.TrimRight(strings.TrimSpace(c.Kitsu.BaseURL), "/")
	c.Publish.Mode = strings.ToLower(strings.TrimSpace(c.Publish.Mode))
	c.Publish.URL = strings.TrimRight(strings.TrimSpace(c.Publish.URL), "/")
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("config: paths.cache_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		return errors.New("config: paths.database_path must not be empty")
	}
	if strings.TrimSpace(c.Kitsu.BaseURL) == "" {
		return errors.New("config: kitsu.base_url must not be empty")
	}
	if c.Kitsu.PageLimit <= 0 || c.Kitsu.PageLimit > 20 {
		return fmt.Errorf("config: kitsu.page_limit must be in 1..20, got %d", c.Kitsu.PageLimit)
	}
	if c.Kitsu.RatePerMinute <= 0 {
		return fmt.Errorf("config: kitsu.rate_per_minute must be positive, got %d", c.Kitsu.RatePerMinute)
	}
	if c.Kitsu.RetryAttempts <= 0 {
		return fmt.Errorf("config: kitsu.retry_attempts must be positive, got %d", c.Kitsu.RetryAttempts)
	}
	if c.Resolver.Workers <= 0 {
		return fmt.Errorf("config: resolver.workers must be positive, got %d", c.Resolver.Workers)
	}
	switch c.Publish.Mode {
	case "", "http", "directory":
	default:
		return fmt.Errorf("config: publish.mode must be \"http\", \"directory\", or empty, got %q", c.Publish.Mode)
	}
	if c.Publish.Mode == "http" && c.Publish.URL == "" {
		return errors.New("config: publish.url required when publish.mode is \"http\"")
	}
	if c.Publish.Mode == "directory" && strings.TrimSpace(c.Publish.Dir) == "" {
		return errors.New("config: publish.dir required when publish.mode is \"directory\"")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// EnsureDirectories creates the directories a run needs before any component
// touches disk.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.CacheDir,
		filepath.Dir(c.Paths.DatabasePath),
		c.Paths.LogDir,
	}
	if strings.TrimSpace(c.Paths.SummaryPath) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.SummaryPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Publish.Mode == "directory" && strings.TrimSpace(c.Publish.Dir) != "" {
		if err := os.MkdirAll(c.Publish.Dir, 0o755); err != nil {
			return fmt.Errorf("create publish directory %q: %w", c.Publish.Dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded annotated sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
