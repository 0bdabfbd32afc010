package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/logging"
	"kitsusync/internal/publish"
	"kitsusync/internal/resolver"
	"kitsusync/internal/summary"
)

// libraryLister resolves a user name to the set of anime ids in their library.
type libraryLister interface {
	FindUserID(ctx context.Context, name string) (string, error)
	ListLibraryAnimeIDs(ctx context.Context, userID string) ([]string, error)
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var userName string
	var ids []string
	var doPublish bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch, ingest, and export the catalog in one run",
		Long: `Resolve every anime id through the cache (fetching misses from Kitsu),
ingest the resolved records into the catalog database, and export the
summary. A failing id is reported and skipped; the rest of the batch
completes. The exit code is non-zero when any stage recorded failures.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			lock, err := acquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			client, err := newCatalogClient(cfg)
			if err != nil {
				return err
			}

			runIDs, err := resolveTargetIDs(cmd, client, userName, ids)
			if err != nil {
				return err
			}
			if len(runIDs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to sync")
				return nil
			}

			cache, err := cachestore.New(cfg.Paths.CacheDir, logger)
			if err != nil {
				return err
			}

			batch := newBatchResolver(cfg, cache, client, logger)
			result, resolveErr := batch.Resolve(cmd.Context(), runIDs)
			if resolveErr != nil && result == nil {
				return resolveErr
			}

			store, err := openLibrary(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Ingest(cmd.Context(), result.Records)
			if err != nil {
				return err
			}

			if err := summary.ExportFile(cmd.Context(), store, cfg.Paths.SummaryPath, logger); err != nil {
				return err
			}

			var pubResult *publish.Result
			if doPublish {
				dest, err := newDestination(cfg)
				if err != nil {
					return err
				}
				if dest == nil {
					return errors.New("publishing requested but no publish mode is configured")
				}
				publisher := publish.New(dest, logger)
				pubResult, err = publisher.Publish(cmd.Context(), runArtifacts(cfg))
				if err != nil && pubResult == nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			printRunReport(out, result, report.Ingested, report.Flagged, report.Failures, pubResult)
			fmt.Fprintf(out, "Summary written to %s\n", cfg.Paths.SummaryPath)

			failures := len(result.Failures) + len(report.Failures)
			if pubResult != nil {
				failures += len(pubResult.Failures)
			}
			if resolveErr != nil {
				return resolveErr
			}
			if failures > 0 {
				return fmt.Errorf("sync completed with %d failure(s)", failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "Kitsu user whose library to sync")
	cmd.Flags().StringArrayVar(&ids, "id", nil, "Anime id to sync (repeatable; overrides --user)")
	cmd.Flags().BoolVar(&doPublish, "publish", false, "Push the database and summary to the configured destination")
	return cmd
}

// resolveTargetIDs picks the batch: explicit --id values win, otherwise the
// named user's library listing.
func resolveTargetIDs(cmd *cobra.Command, client libraryLister, userName string, ids []string) ([]string, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, errors.New("provide --user or at least one --id")
	}
	userID, err := client.FindUserID(cmd.Context(), userName)
	if err != nil {
		return nil, fmt.Errorf("look up user %q: %w", userName, err)
	}
	listed, err := client.ListLibraryAnimeIDs(cmd.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("list library for %q: %w", userName, err)
	}
	return listed, nil
}

func printRunReport(out io.Writer, result *resolver.Result, ingested, flagged int, ingestFailures map[string]error, pubResult *publish.Result) {
	fmt.Fprintf(out, "Resolved %d id(s): %d from cache, %d fetched, %d failed\n",
		len(result.Records)+len(result.Failures), result.Hits, result.Fetched, len(result.Failures))
	fmt.Fprintf(out, "Ingested %d row(s), %d flagged, %d rejected\n", ingested, flagged, len(ingestFailures))

	if len(result.Failures) > 0 {
		rows := make([][]string, 0, len(result.Failures))
		for _, failure := range result.Failures {
			rows = append(rows, []string{failure.EntityID, failure.Err.Error()})
		}
		fmt.Fprintln(out, "Resolve failures:")
		fmt.Fprintln(out, renderTable([]string{"ID", "ERROR"}, rows, nil))
	}
	if len(ingestFailures) > 0 {
		fmt.Fprintln(out, "Ingest failures:")
		fmt.Fprintln(out, renderTable([]string{"ID", "ERROR"}, sortedErrorRows(ingestFailures), nil))
	}
	if pubResult != nil {
		fmt.Fprintf(out, "Published %d artifact(s), %d failed\n", len(pubResult.Published), len(pubResult.Failures))
		if len(pubResult.Failures) > 0 {
			rows := make([][]string, 0, len(pubResult.Failures))
			for _, id := range sortedKeys(pubResult.Failures) {
				rows = append(rows, []string{id, pubResult.Failures[id]})
			}
			fmt.Fprintln(out, "Publish failures:")
			fmt.Fprintln(out, renderTable([]string{"ARTIFACT", "ERROR"}, rows, nil))
		}
	}
}

func sortedErrorRows(failures map[string]error) [][]string {
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, failures[id].Error()})
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
