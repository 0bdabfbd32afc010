package library

import (
	"context"
	"sort"
	"time"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/logging"
)

// Ingest normalizes every record and upserts it by entity id, replacing any
// prior row in full. A malformed record never blocks the rest of the batch:
// records that cannot yield a row land in the report's failure map, rows with
// malformed fields are ingested flagged. Rows are written one statement at a
// time so cancellation mid-batch leaves every already-written row valid; the
// database is queryable as soon as Ingest returns.
func (s *Store) Ingest(ctx context.Context, records map[string]cachestore.RawRecord) (*Report, error) {
	report := &Report{Failures: make(map[string]error)}

	// Deterministic write order keeps runs comparable in logs.
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		row, err := normalize(records[id])
		if err != nil {
			report.Failures[id] = err
			s.logger.Warn("record rejected",
				logging.String(logging.FieldEntityID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ingest_record_rejected"),
				logging.String(logging.FieldErrorHint, "inspect the cached payload or remove the cache entry"))
			continue
		}

		row.IngestedAt = now
		if err := s.upsert(ctx, row); err != nil {
			report.Failures[id] = err
			continue
		}

		report.Ingested++
		if row.Flagged {
			report.Flagged++
			s.logger.Warn("row flagged",
				logging.String(logging.FieldEntityID, id),
				logging.Any("fields", row.ParseErrors),
				logging.String(logging.FieldEventType, "ingest_row_flagged"),
				logging.String(logging.FieldErrorHint, "raw payload retained in raw_json"))
		}
	}

	s.logger.Info("ingestion complete",
		logging.Int("ingested", report.Ingested),
		logging.Int("flagged", report.Flagged),
		logging.Int("rejected", len(report.Failures)))

	return report, nil
}
