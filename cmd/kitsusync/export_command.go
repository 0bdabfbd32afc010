package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kitsusync/internal/library"
	"kitsusync/internal/summary"
)

// previewLimit bounds the rows shown after a file export; the artifact
// itself always carries every row.
const previewLimit = 10

func summaryPreview(rows []library.Row) string {
	shown := rows
	if len(shown) > previewLimit {
		shown = shown[:previewLimit]
	}

	cells := make([][]string, 0, len(shown))
	for _, row := range shown {
		status := "-"
		if row.Status.IsPresent() {
			status = row.Status.Value
		}
		episodes := "-"
		if row.EpisodeCount.IsPresent() {
			episodes = strconv.FormatInt(row.EpisodeCount.Value, 10)
		}
		cells = append(cells, []string{
			row.ID,
			summary.DisplayTitle(row),
			status,
			episodes,
			yesNo(row.Flagged),
		})
	}

	rendered := renderTable(
		[]string{"ID", "TITLE", "STATUS", "EPISODES", "FLAGGED"},
		cells,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
	if len(rows) > len(shown) {
		rendered += fmt.Sprintf("\n(showing %d of %d rows)", len(shown), len(rows))
	}
	return rendered
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalog summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cliLogger("cli-export")
			if err != nil {
				return err
			}

			store, err := openLibrary(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			target := strings.TrimSpace(outPath)
			if target == "" {
				target = cfg.Paths.SummaryPath
			}
			if target == "-" {
				return summary.Export(cmd.Context(), store, cmd.OutOrStdout(), logger)
			}
			if err := summary.ExportFile(cmd.Context(), store, target, logger); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Summary written to %s\n", target)

			rows, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, summaryPreview(rows))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Summary destination (\"-\" for stdout)")
	return cmd
}
