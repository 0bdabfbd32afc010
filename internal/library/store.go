package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kitsusync/internal/logging"
	"kitsusync/internal/services"
)

// Store manages the normalized catalog database backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open initializes or connects to the catalog database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("database path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "library"),
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// GetByID returns the normalized row for an entity id.
func (s *Store) GetByID(ctx context.Context, id string) (*Row, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "library", "get", "entity id must not be empty", nil)
	}

	row := s.db.QueryRowContext(ctx, selectColumns+" FROM anime WHERE id = ?", id)
	result, err := scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "library", "get", fmt.Sprintf("no row for id %s", id), nil)
		}
		return nil, fmt.Errorf("query row: %w", err)
	}
	return result, nil
}

// List returns every row ordered by entity id ascending. The full-table scan
// backs summary generation and the read-only surface the UI layer consumes.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" FROM anime ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Count returns the number of rows in the database.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM anime").Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

const selectColumns = `SELECT id, canonical_title, subtype, status, average_rating,
	episode_count, start_date, age_rating, synopsis, flagged, parse_errors, raw_json, ingested_at`

// upsert writes one row, replacing any prior row for the same id in full.
func (s *Store) upsert(ctx context.Context, row Row) error {
	parseErrors := sql.NullString{}
	if len(row.ParseErrors) > 0 {
		encoded, err := json.Marshal(row.ParseErrors)
		if err != nil {
			return fmt.Errorf("marshal parse errors: %w", err)
		}
		parseErrors = sql.NullString{String: string(encoded), Valid: true}
	}
	rawJSON := sql.NullString{}
	if len(row.RawJSON) > 0 {
		rawJSON = sql.NullString{String: string(row.RawJSON), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anime (
			id, canonical_title, subtype, status, average_rating,
			episode_count, start_date, age_rating, synopsis,
			flagged, parse_errors, raw_json, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			canonical_title = excluded.canonical_title,
			subtype         = excluded.subtype,
			status          = excluded.status,
			average_rating  = excluded.average_rating,
			episode_count   = excluded.episode_count,
			start_date      = excluded.start_date,
			age_rating      = excluded.age_rating,
			synopsis        = excluded.synopsis,
			flagged         = excluded.flagged,
			parse_errors    = excluded.parse_errors,
			raw_json        = excluded.raw_json,
			ingested_at     = excluded.ingested_at`,
		row.ID,
		nullString(row.CanonicalTitle),
		nullString(row.Subtype),
		nullString(row.Status),
		nullFloat(row.AverageRating),
		nullInt(row.EpisodeCount),
		nullString(row.StartDate),
		nullString(row.AgeRating),
		nullString(row.Synopsis),
		boolToInt(row.Flagged),
		parseErrors,
		rawJSON,
		row.IngestedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert row %s: %w", row.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(scanner rowScanner) (*Row, error) {
	var (
		row         Row
		title       sql.NullString
		subtype     sql.NullString
		status      sql.NullString
		rating      sql.NullFloat64
		episodes    sql.NullInt64
		startDate   sql.NullString
		ageRating   sql.NullString
		synopsis    sql.NullString
		flagged     int
		parseErrors sql.NullString
		rawJSON     sql.NullString
		ingestedAt  string
	)

	if err := scanner.Scan(&row.ID, &title, &subtype, &status, &rating,
		&episodes, &startDate, &ageRating, &synopsis, &flagged,
		&parseErrors, &rawJSON, &ingestedAt); err != nil {
		return nil, err
	}

	row.Flagged = flagged != 0
	if parseErrors.Valid && parseErrors.String != "" {
		if err := json.Unmarshal([]byte(parseErrors.String), &row.ParseErrors); err != nil {
			return nil, fmt.Errorf("decode parse errors: %w", err)
		}
	}
	if rawJSON.Valid {
		row.RawJSON = json.RawMessage(rawJSON.String)
	}
	ts, err := time.Parse(time.RFC3339Nano, ingestedAt)
	if err != nil {
		return nil, fmt.Errorf("decode ingested_at: %w", err)
	}
	row.IngestedAt = ts

	malformed := make(map[string]struct{}, len(row.ParseErrors))
	for _, field := range row.ParseErrors {
		malformed[field] = struct{}{}
	}

	row.CanonicalTitle = stringColumn(title, "canonicalTitle", malformed)
	row.Subtype = stringColumn(subtype, "subtype", malformed)
	row.Status = stringColumn(status, "status", malformed)
	row.AverageRating = floatColumn(rating, "averageRating", malformed)
	row.EpisodeCount = intColumn(episodes, "episodeCount", malformed)
	row.StartDate = stringColumn(startDate, "startDate", malformed)
	row.AgeRating = stringColumn(ageRating, "ageRating", malformed)
	row.Synopsis = stringColumn(synopsis, "synopsis", malformed)

	return &row, nil
}

func stringColumn(value sql.NullString, field string, malformed map[string]struct{}) Field[string] {
	if value.Valid {
		return Present(value.String)
	}
	if _, ok := malformed[field]; ok {
		return Field[string]{State: FieldMalformed}
	}
	return Field[string]{State: FieldAbsent}
}

func floatColumn(value sql.NullFloat64, field string, malformed map[string]struct{}) Field[float64] {
	if value.Valid {
		return Present(value.Float64)
	}
	if _, ok := malformed[field]; ok {
		return Field[float64]{State: FieldMalformed}
	}
	return Field[float64]{State: FieldAbsent}
}

func intColumn(value sql.NullInt64, field string, malformed map[string]struct{}) Field[int64] {
	if value.Valid {
		return Present(value.Int64)
	}
	if _, ok := malformed[field]; ok {
		return Field[int64]{State: FieldMalformed}
	}
	return Field[int64]{State: FieldAbsent}
}

func nullString(f Field[string]) sql.NullString {
	if f.State != FieldPresent {
		return sql.NullString{}
	}
	return sql.NullString{String: f.Value, Valid: true}
}

func nullFloat(f Field[float64]) sql.NullFloat64 {
	if f.State != FieldPresent {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f.Value, Valid: true}
}

func nullInt(f Field[int64]) sql.NullInt64 {
	if f.State != FieldPresent {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: f.Value, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
