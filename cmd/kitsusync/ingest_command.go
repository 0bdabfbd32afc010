package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/logging"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest cached responses into the catalog database",
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

			cache, err := cachestore.New(cfg.Paths.CacheDir, logger)
			if err != nil {
				return err
			}

			targets := ids
			if len(targets) == 0 {
				targets, err = cache.List()
				if err != nil {
					return err
				}
			}
			if len(targets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty; nothing to ingest")
				return nil
			}

			records := make(map[string]cachestore.RawRecord, len(targets))
			for _, id := range targets {
				record, err := cache.Read(id)
				if err != nil {
					return fmt.Errorf("read cache entry %s: %w", id, err)
				}
				records[id] = record
			}

			store, err := openLibrary(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Ingest(cmd.Context(), records)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %d row(s), %d flagged, %d rejected\n", report.Ingested, report.Flagged, len(report.Failures))
			if len(report.Failures) > 0 {
				fmt.Fprintln(out, renderTable([]string{"ID", "ERROR"}, sortedErrorRows(report.Failures), nil))
				return fmt.Errorf("ingest completed with %d failure(s)", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&ids, "id", nil, "Cached id to ingest (repeatable; defaults to every cache entry)")
	return cmd
}
