package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirDestination publishes artifacts by copying them into a local directory,
// e.g. a mounted share the dashboard reads from. Re-publishing overwrites the
// prior copy atomically.
type DirDestination struct {
	dir string
}

// NewDirDestination builds a directory destination, creating dir if needed.
func NewDirDestination(dir string) (*DirDestination, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("publish directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create publish directory: %w", err)
	}
	return &DirDestination{dir: dir}, nil
}

// Publish copies one artifact into the destination directory under its id.
func (d *DirDestination) Publish(ctx context.Context, artifact Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(artifact.ID, "/\\") {
		return fmt.Errorf("invalid artifact id %q", artifact.ID)
	}

	source, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer source.Close()

	targetPath := filepath.Join(d.dir, artifact.ID)
	tmpPath := targetPath + ".tmp"
	dest, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp copy: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp copy: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp copy: %w", err)
	}
	return nil
}
