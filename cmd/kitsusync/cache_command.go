package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kitsusync/internal/cachestore"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the response cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			ids, err := cache.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}

			const stampLayout = "2006-01-02 15:04"
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				record, err := cache.Read(id)
				if err != nil {
					rows = append(rows, []string{id, "(unreadable)", "-"})
					continue
				}
				rows = append(rows, []string{
					id,
					record.RetrievedAt.Local().Format(stampLayout),
					fmt.Sprintf("%d", len(record.Payload)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "RETRIEVED", "BYTES"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "%d entr%s\n", len(ids), pluralY(len(ids)))
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove cached responses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			removed := 0
			for _, id := range args {
				if err := cache.Remove(id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				removed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entr%s\n", removed, pluralY(removed))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			before, err := cache.Count()
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entr%s\n", before, pluralY(before))
			return nil
		},
	}
}

func openCache(ctx *commandContext) (*cachestore.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cliLogger("cli-cache")
	if err != nil {
		return nil, err
	}
	return cachestore.New(cfg.Paths.CacheDir, logger)
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
