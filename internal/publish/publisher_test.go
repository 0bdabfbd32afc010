package publish_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kitsusync/internal/publish"
)

// stubDestination fails for configured ids and records attempts.
type stubDestination struct {
	mu       sync.Mutex
	failIDs  map[string]error
	attempts []string
}

func (d *stubDestination) Publish(ctx context.Context, artifact publish.Artifact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, artifact.ID)
	if err, ok := d.failIDs[artifact.ID]; ok {
		return err
	}
	return nil
}

func writeArtifact(t *testing.T, name, content string) publish.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return publish.Artifact{ID: name, Path: path, ContentType: "text/csv"}
}

func TestPublishPartialFailure(t *testing.T) {
	t.Parallel()

	dest := &stubDestination{failIDs: map[string]error{
		"broken.csv": errors.New("destination returned 507"),
	}}
	publisher := publish.New(dest, nil)

	artifacts := []publish.Artifact{
		{ID: "summary.csv", Path: "unused"},
		{ID: "broken.csv", Path: "unused"},
		{ID: "kitsusync.db", Path: "unused"},
	}
	result, err := publisher.Publish(context.Background(), artifacts)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(dest.attempts) != 3 {
		t.Errorf("attempts = %v, every artifact must be tried", dest.attempts)
	}
	if len(result.Published) != 2 {
		t.Errorf("published = %v", result.Published)
	}
	msg, ok := result.Failures["broken.csv"]
	if !ok {
		t.Fatalf("failures = %v, want broken.csv keyed by id", result.Failures)
	}
	if !strings.Contains(msg, "507") {
		t.Errorf("failure message lost the destination detail: %q", msg)
	}
	if result.Ok() {
		t.Error("Ok() should be false with failures present")
	}
}

func TestPublishEmptySetSucceeds(t *testing.T) {
	t.Parallel()

	publisher := publish.New(&stubDestination{}, nil)
	result, err := publisher.Publish(context.Background(), nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !result.Ok() || len(result.Published) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestPublishRejectsUnnamedArtifacts(t *testing.T) {
	t.Parallel()

	dest := &stubDestination{}
	publisher := publish.New(dest, nil)
	result, err := publisher.Publish(context.Background(), []publish.Artifact{{ID: "  "}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(dest.attempts) != 0 {
		t.Error("unnamed artifact should not reach the destination")
	}
	if len(result.Failures) != 1 {
		t.Errorf("failures = %v", result.Failures)
	}
}

func TestPublishReportsEachUnnamedArtifact(t *testing.T) {
	t.Parallel()

	dest := &stubDestination{}
	publisher := publish.New(dest, nil)
	result, err := publisher.Publish(context.Background(), []publish.Artifact{
		{ID: ""}, {ID: "  "}, {ID: "named", Path: "/nonexistent"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(result.Failures) < 2 {
		t.Fatalf("failures = %v, want a distinct entry per unnamed artifact", result.Failures)
	}
	if _, ok := result.Failures["(unnamed #1)"]; !ok {
		t.Errorf("missing positional failure key: %v", result.Failures)
	}
	if _, ok := result.Failures["(unnamed #2)"]; !ok {
		t.Errorf("missing positional failure key: %v", result.Failures)
	}
}

func TestHTTPDestinationPutsArtifact(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	bodies := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sekrit" {
			t.Errorf("auth = %q", auth)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		bodies[r.URL.Path] = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	dest, err := publish.NewHTTPDestination(server.URL, "sekrit", 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDestination: %v", err)
	}

	artifact := writeArtifact(t, "summary.csv", "id,title\n1,Trigun\n")
	if err := dest.Publish(context.Background(), artifact); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := bodies["/summary.csv"]; got != "id,title\n1,Trigun\n" {
		t.Errorf("uploaded body = %q", got)
	}
}

func TestHTTPDestinationSurfacesStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	t.Cleanup(server.Close)

	dest, err := publish.NewHTTPDestination(server.URL, "", 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPDestination: %v", err)
	}

	artifact := writeArtifact(t, "summary.csv", "data")
	err = dest.Publish(context.Background(), artifact)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "507") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error lost status detail: %v", err)
	}
}

func TestDirDestinationCopiesAndOverwrites(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "published")
	dest, err := publish.NewDirDestination(outDir)
	if err != nil {
		t.Fatalf("NewDirDestination: %v", err)
	}

	first := writeArtifact(t, "summary.csv", "v1")
	if err := dest.Publish(context.Background(), first); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	second := writeArtifact(t, "summary.csv", "v2")
	if err := dest.Publish(context.Background(), second); err != nil {
		t.Fatalf("re-Publish: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(outDir, "summary.csv"))
	if err != nil {
		t.Fatalf("read published copy: %v", err)
	}
	if string(content) != "v2" {
		t.Errorf("content = %q, want deterministic overwrite", content)
	}
}

func TestDirDestinationRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	dest, err := publish.NewDirDestination(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirDestination: %v", err)
	}
	artifact := writeArtifact(t, "x", "data")
	artifact.ID = "../escape"
	if err := dest.Publish(context.Background(), artifact); err == nil {
		t.Fatal("expected error for traversal id")
	}
}

func TestPublishCancellationReportsUnattempted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	publisher := publish.New(&stubDestination{}, nil)
	artifacts := []publish.Artifact{{ID: "a"}, {ID: "b"}}
	result, err := publisher.Publish(ctx, artifacts)
	if err == nil {
		t.Fatal("expected context error")
	}
	for _, id := range []string{"a", "b"} {
		if _, ok := result.Failures[id]; !ok {
			t.Errorf("artifact %s missing from failure report: %v", id, result.Failures)
		}
	}
}

func TestDirDestinationManyArtifacts(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	dest, err := publish.NewDirDestination(outDir)
	if err != nil {
		t.Fatalf("NewDirDestination: %v", err)
	}
	publisher := publish.New(dest, nil)

	var artifacts []publish.Artifact
	for i := 0; i < 5; i++ {
		artifacts = append(artifacts, writeArtifact(t, fmt.Sprintf("part-%d.csv", i), fmt.Sprintf("part %d", i)))
	}

	result, err := publisher.Publish(context.Background(), artifacts)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !result.Ok() {
		t.Fatalf("failures = %v", result.Failures)
	}
	if len(result.Published) != 5 {
		t.Errorf("published = %v", result.Published)
	}
}
