package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/logging"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var userName string
	var ids []string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Resolve ids into the response cache without ingesting",
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

			cache, err := cachestore.New(cfg.Paths.CacheDir, logger)
			if err != nil {
				return err
			}

			batch := newBatchResolver(cfg, cache, client, logger)
			result, resolveErr := batch.Resolve(cmd.Context(), runIDs)
			if resolveErr != nil && result == nil {
				return resolveErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Resolved %d id(s): %d from cache, %d fetched, %d failed\n",
				len(result.Records)+len(result.Failures), result.Hits, result.Fetched, len(result.Failures))
			if len(result.Failures) > 0 {
				rows := make([][]string, 0, len(result.Failures))
				for _, failure := range result.Failures {
					rows = append(rows, []string{failure.EntityID, failure.Err.Error()})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "ERROR"}, rows, nil))
			}

			if resolveErr != nil {
				return resolveErr
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("fetch completed with %d failure(s)", len(result.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "Kitsu user whose library to fetch")
	cmd.Flags().StringArrayVar(&ids, "id", nil, "Anime id to fetch (repeatable; overrides --user)")
	return cmd
}
