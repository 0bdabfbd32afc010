package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"kitsusync/internal/logging"
	"kitsusync/internal/services"
)

// Artifact is one file to push to the destination: the database, the summary,
// or anything else a run produces.
type Artifact struct {
	ID          string
	Path        string
	ContentType string
}

// Result is the per-run publish outcome: which artifacts landed and, for the
// rest, a human-readable error keyed by artifact id. Consumed immediately by
// the caller and surfaced to the operator, never persisted.
type Result struct {
	Published []string
	Failures  map[string]string
}

// Ok reports whether every artifact published.
func (r *Result) Ok() bool {
	return len(r.Failures) == 0
}

// Destination pushes a single artifact to an external target. Publishing the
// same artifact twice must overwrite deterministically, never corrupt.
type Destination interface {
	Publish(ctx context.Context, artifact Artifact) error
}

// Publisher pushes artifacts to a destination, attempting each independently.
type Publisher struct {
	dest   Destination
	logger *slog.Logger
}

// New builds a Publisher over dest. A nil logger defaults to a no-op sink.
func New(dest Destination, logger *slog.Logger) *Publisher {
	return &Publisher{
		dest:   dest,
		logger: logging.NewComponentLogger(logger, "publish"),
	}
}

// Publish attempts every artifact regardless of earlier failures and collects
// per-artifact errors. One failing artifact never prevents the rest. On
// cancellation the artifacts not yet attempted are reported as failures and
// the context error is returned alongside the partial result.
func (p *Publisher) Publish(ctx context.Context, artifacts []Artifact) (*Result, error) {
	result := &Result{Failures: make(map[string]string)}

	for i, artifact := range artifacts {
		id := strings.TrimSpace(artifact.ID)
		if id == "" {
			result.Failures[fmt.Sprintf("(unnamed #%d)", i+1)] = "artifact id must not be empty"
			continue
		}

		if err := ctx.Err(); err != nil {
			result.Failures[id] = "not attempted: " + err.Error()
			continue
		}

		if err := p.dest.Publish(ctx, artifact); err != nil {
			wrapped := services.Wrap(services.ErrPublish, "publish", id, "", err)
			result.Failures[id] = err.Error()
			p.logger.Error("artifact publish failed",
				logging.String(logging.FieldArtifact, id),
				logging.Error(wrapped),
				logging.String(logging.FieldEventType, "publish_failed"),
				logging.String(logging.FieldErrorHint, "re-run publish after fixing the destination"))
			continue
		}

		result.Published = append(result.Published, id)
		p.logger.Info("artifact published", logging.String(logging.FieldArtifact, id))
	}

	sort.Strings(result.Published)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
