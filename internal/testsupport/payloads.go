package testsupport

import (
	"encoding/json"
	"fmt"
	"time"

	"kitsusync/internal/cachestore"
)

// AnimePayload renders a well-formed Kitsu anime document for id with the
// given attribute overrides. Pass nil values to omit attributes entirely.
func AnimePayload(id string, attrs map[string]any) json.RawMessage {
	merged := map[string]any{
		"canonicalTitle": "Title " + id,
		"subtype":        "TV",
		"status":         "finished",
		"averageRating":  "75.50",
		"episodeCount":   12,
		"startDate":      "2020-01-01",
		"ageRating":      "PG",
		"synopsis":       "Synopsis for " + id,
	}
	for key, value := range attrs {
		if value == nil {
			delete(merged, key)
			continue
		}
		merged[key] = value
	}

	doc := map[string]any{
		"data": map[string]any{
			"id":         id,
			"type":       "anime",
			"attributes": merged,
		},
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("encode test payload: %v", err))
	}
	return encoded
}

// RawRecord wraps a payload as a cache record with a fixed retrieval time.
func RawRecord(id string, payload json.RawMessage) cachestore.RawRecord {
	return cachestore.RawRecord{
		EntityID:    id,
		RetrievedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Payload:     payload,
	}
}

// Records builds a resolver-style record map from well-formed payloads.
func Records(ids ...string) map[string]cachestore.RawRecord {
	out := make(map[string]cachestore.RawRecord, len(ids))
	for _, id := range ids {
		out[id] = RawRecord(id, AnimePayload(id, nil))
	}
	return out
}
