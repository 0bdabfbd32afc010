package summary

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"kitsusync/internal/library"
	"kitsusync/internal/logging"
)

// Headers is the fixed column set of the summary artifact, in output order.
var Headers = []string{
	"id",
	"title",
	"subtype",
	"status",
	"average_rating",
	"episode_count",
	"start_date",
	"age_rating",
	"flagged",
}

// Export writes the CSV projection of the database to w: the fixed header
// row always, then one row per entity ordered by id ascending. Absent and
// malformed fields render as empty cells. The projection is a pure function
// of the database, so identical contents produce byte-identical output.
func Export(ctx context.Context, store *library.Store, w io.Writer, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "summary")

	rows, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("scan database: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.ID,
			stringCell(row.CanonicalTitle),
			stringCell(row.Subtype),
			stringCell(row.Status),
			floatCell(row.AverageRating),
			intCell(row.EpisodeCount),
			stringCell(row.StartDate),
			stringCell(row.AgeRating),
			strconv.FormatBool(row.Flagged),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", row.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}

	logger.Info("summary exported", logging.Int("rows", len(rows)))
	return nil
}

// ExportFile regenerates the summary artifact at path atomically.
func ExportFile(ctx context.Context, store *library.Store, path string, logger *slog.Logger) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp summary: %w", err)
	}

	if err := Export(ctx, store, file, logger); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp summary: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp summary: %w", err)
	}
	return nil
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// DisplayTitle renders a row's title for terminal output. The artifact itself
// always carries source bytes untouched; casing is display-only.
func DisplayTitle(row library.Row) string {
	if !row.CanonicalTitle.IsPresent() {
		return "(unknown)"
	}
	return titleCaser.String(row.CanonicalTitle.Value)
}

func stringCell(f library.Field[string]) string {
	if !f.IsPresent() {
		return ""
	}
	return f.Value
}

func floatCell(f library.Field[float64]) string {
	if !f.IsPresent() {
		return ""
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

func intCell(f library.Field[int64]) string {
	if !f.IsPresent() {
		return ""
	}
	return strconv.FormatInt(f.Value, 10)
}
