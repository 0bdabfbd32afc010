package library

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"kitsusync/internal/cachestore"
	"kitsusync/internal/services"
)

// jsonAPIDocument is the envelope every cached Kitsu payload must carry.
type jsonAPIDocument struct {
	Data struct {
		ID         string                     `json:"id"`
		Type       string                     `json:"type"`
		Attributes map[string]json.RawMessage `json:"attributes"`
	} `json:"data"`
}

// normalize reduces a raw record to the fixed Row schema. Fields missing from
// the payload become absent, never dropped; fields of unexpected shape are
// coerced when safe, otherwise the row is flagged and the raw payload kept.
// An error is returned only when the payload cannot yield a row at all.
func normalize(record cachestore.RawRecord) (Row, error) {
	var doc jsonAPIDocument
	if err := json.Unmarshal(record.Payload, &doc); err != nil {
		return Row{}, services.Wrap(services.ErrParse, "library", "normalize",
			fmt.Sprintf("payload for id %s is not a JSON:API document", record.EntityID), err)
	}
	if doc.Data.Attributes == nil {
		return Row{}, services.Wrap(services.ErrParse, "library", "normalize",
			fmt.Sprintf("payload for id %s has no attributes object", record.EntityID), nil)
	}

	row := Row{ID: record.EntityID}
	var malformed []string

	row.CanonicalTitle = stringField(doc.Data.Attributes, "canonicalTitle", &malformed)
	row.Subtype = stringField(doc.Data.Attributes, "subtype", &malformed)
	row.Status = stringField(doc.Data.Attributes, "status", &malformed)
	row.AverageRating = floatField(doc.Data.Attributes, "averageRating", &malformed)
	row.EpisodeCount = intField(doc.Data.Attributes, "episodeCount", &malformed)
	row.StartDate = stringField(doc.Data.Attributes, "startDate", &malformed)
	row.AgeRating = stringField(doc.Data.Attributes, "ageRating", &malformed)
	row.Synopsis = stringField(doc.Data.Attributes, "synopsis", &malformed)

	if len(malformed) > 0 {
		sort.Strings(malformed)
		row.Flagged = true
		row.ParseErrors = malformed
		row.RawJSON = record.Payload
	}

	return row, nil
}

func rawValue(attrs map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := attrs[key]
	if !ok {
		return nil, false
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		// Kitsu sends explicit nulls for unknown values; treat them as absent.
		return nil, false
	}
	return raw, true
}

func stringField(attrs map[string]json.RawMessage, key string, malformed *[]string) Field[string] {
	raw, ok := rawValue(attrs, key)
	if !ok {
		return Field[string]{State: FieldAbsent}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Present(s)
	}

	// A bare number is safely representable as a string.
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return Present(n.String())
	}

	*malformed = append(*malformed, key)
	return Field[string]{State: FieldMalformed}
}

func floatField(attrs map[string]json.RawMessage, key string, malformed *[]string) Field[float64] {
	raw, ok := rawValue(attrs, key)
	if !ok {
		return Field[float64]{State: FieldAbsent}
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return Present(f)
	}

	// Kitsu serializes ratings as decimal strings ("82.69").
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64); perr == nil {
			return Present(parsed)
		}
	}

	*malformed = append(*malformed, key)
	return Field[float64]{State: FieldMalformed}
}

func intField(attrs map[string]json.RawMessage, key string, malformed *[]string) Field[int64] {
	raw, ok := rawValue(attrs, key)
	if !ok {
		return Field[int64]{State: FieldAbsent}
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == math.Trunc(f) {
			return Present(int64(f))
		}
		*malformed = append(*malformed, key)
		return Field[int64]{State: FieldMalformed}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, perr := strconv.ParseInt(strings.TrimSpace(s), 10, 64); perr == nil {
			return Present(parsed)
		}
	}

	*malformed = append(*malformed, key)
	return Field[int64]{State: FieldMalformed}
}
