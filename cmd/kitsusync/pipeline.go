package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/config"
	"kitsusync/internal/kitsu"
	"kitsusync/internal/library"
	"kitsusync/internal/publish"
	"kitsusync/internal/resolver"
)

const lockFileName = ".kitsusync.lock"

// acquireRunLock takes the cross-process lock that keeps concurrent runs from
// interleaving cache and database writes. The caller must Unlock.
func acquireRunLock(cfg *config.Config) (*flock.Flock, error) {
	lockPath := filepath.Join(cfg.Paths.CacheDir, lockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("another kitsusync run holds %s", lockPath)
	}
	return lock, nil
}

func newCatalogClient(cfg *config.Config) (*kitsu.Client, error) {
	httpClient := &http.Client{Timeout: time.Duration(cfg.Kitsu.RequestTimeout) * time.Second}
	return kitsu.New(cfg.Kitsu.BaseURL,
		kitsu.WithHTTPClient(httpClient),
		kitsu.WithRatePerMinute(cfg.Kitsu.RatePerMinute),
		kitsu.WithPageLimit(cfg.Kitsu.PageLimit),
	)
}

func newBatchResolver(cfg *config.Config, cache *cachestore.Store, fetcher resolver.Fetcher, logger *slog.Logger) *resolver.Resolver {
	backoff := time.Duration(cfg.Kitsu.RetryBackoffMS) * time.Millisecond
	return resolver.New(cache, fetcher,
		resolver.WithWorkers(cfg.Resolver.Workers),
		resolver.WithRetry(cfg.Kitsu.RetryAttempts, backoff),
		resolver.WithLogger(logger),
	)
}

// newDestination builds the configured publish target, or returns nil when
// publishing is disabled.
func newDestination(cfg *config.Config) (publish.Destination, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Publish.Mode)) {
	case "":
		return nil, nil
	case "http":
		timeout := time.Duration(cfg.Publish.RequestTimeout) * time.Second
		return publish.NewHTTPDestination(cfg.Publish.URL, cfg.Publish.Token, timeout)
	case "directory":
		return publish.NewDirDestination(cfg.Publish.Dir)
	default:
		return nil, fmt.Errorf("unknown publish mode %q", cfg.Publish.Mode)
	}
}

// runArtifacts lists the files a completed run can push: the catalog database
// and the summary export.
func runArtifacts(cfg *config.Config) []publish.Artifact {
	return []publish.Artifact{
		{ID: "catalog-db", Path: cfg.Paths.DatabasePath, ContentType: "application/vnd.sqlite3"},
		{ID: "summary-csv", Path: cfg.Paths.SummaryPath, ContentType: "text/csv"},
	}
}

func openLibrary(cfg *config.Config, logger *slog.Logger) (*library.Store, error) {
	return library.Open(cfg.Paths.DatabasePath, logger)
}
