package library

import (
	"encoding/json"
	"testing"

	"kitsusync/internal/cachestore"
)

func record(id, payload string) cachestore.RawRecord {
	return cachestore.RawRecord{EntityID: id, Payload: json.RawMessage(payload)}
}

func TestNormalizeCoercions(t *testing.T) {
	t.Parallel()

	row, err := normalize(record("1", `{"data":{"id":"1","type":"anime","attributes":{
		"canonicalTitle": "Trigun",
		"averageRating": "79.20",
		"episodeCount": 26.0,
		"startDate": 1998
	}}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if row.AverageRating.State != FieldPresent || row.AverageRating.Value != 79.2 {
		t.Errorf("averageRating = %+v, want string coerced to 79.2", row.AverageRating)
	}
	if row.EpisodeCount.State != FieldPresent || row.EpisodeCount.Value != 26 {
		t.Errorf("episodeCount = %+v, want integral float coerced to 26", row.EpisodeCount)
	}
	if row.StartDate.State != FieldPresent || row.StartDate.Value != "1998" {
		t.Errorf("startDate = %+v, want number coerced to string", row.StartDate)
	}
	if row.Flagged {
		t.Errorf("safe coercions must not flag the row: %v", row.ParseErrors)
	}
}

func TestNormalizeRejectsUnsafeCoercions(t *testing.T) {
	t.Parallel()

	row, err := normalize(record("1", `{"data":{"id":"1","type":"anime","attributes":{
		"canonicalTitle": {"en": "object title"},
		"episodeCount": 12.5,
		"averageRating": "not a number"
	}}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if !row.Flagged {
		t.Fatal("row with malformed fields must be flagged")
	}
	want := []string{"averageRating", "canonicalTitle", "episodeCount"}
	if len(row.ParseErrors) != len(want) {
		t.Fatalf("parse errors = %v, want %v", row.ParseErrors, want)
	}
	for i := range want {
		if row.ParseErrors[i] != want[i] {
			t.Fatalf("parse errors = %v, want %v (sorted)", row.ParseErrors, want)
		}
	}
	if row.CanonicalTitle.State != FieldMalformed {
		t.Errorf("title state = %v", row.CanonicalTitle.State)
	}
	if len(row.RawJSON) == 0 {
		t.Error("flagged row should keep the raw payload")
	}
}

func TestNormalizeRejectsNonDocumentPayloads(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`"just a string"`,
		`{"data":{"id":"1","type":"anime"}}`,
		`{"errors":[{"status":"404"}]}`,
	} {
		if _, err := normalize(record("1", payload)); err == nil {
			t.Errorf("payload %s should not normalize", payload)
		}
	}
}

func TestNormalizeMissingFieldsAreAbsent(t *testing.T) {
	t.Parallel()

	row, err := normalize(record("1", `{"data":{"id":"1","type":"anime","attributes":{"canonicalTitle":"X"}}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for name, state := range map[string]FieldState{
		"subtype":       row.Subtype.State,
		"status":        row.Status.State,
		"averageRating": row.AverageRating.State,
		"episodeCount":  row.EpisodeCount.State,
		"ageRating":     row.AgeRating.State,
	} {
		if state != FieldAbsent {
			t.Errorf("%s state = %v, want absent", name, state)
		}
	}
}
