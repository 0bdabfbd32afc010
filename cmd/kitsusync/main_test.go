package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kitsusync/internal/testsupport"
)

func TestSyncCommandFetchesIngestsAndExports(t *testing.T) {
	server := newAnimeServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL))
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "sync", "--id", "1", "--id", "2")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	requireContains(t, out, "2 fetched")
	requireContains(t, out, "Ingested 2 row(s)")

	data, err := os.ReadFile(cfg.Paths.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(data), "Title 1") {
		t.Fatalf("summary missing ingested row:\n%s", data)
	}

	// second run resolves from cache
	out, err = runCLI(t, configPath, "sync", "--id", "1", "--id", "2")
	if err != nil {
		t.Fatalf("second sync: %v\n%s", err, out)
	}
	requireContains(t, out, "2 from cache")
}

func TestSyncCommandReportsPerIDFailures(t *testing.T) {
	server := newAnimeServer(t, "404")
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL))
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "sync", "--id", "1", "--id", "404")
	if err == nil {
		t.Fatalf("expected non-nil error for failed id, output:\n%s", out)
	}
	requireContains(t, out, "Resolve failures:")
	// the good id still landed
	requireContains(t, out, "Ingested 1 row(s)")
}

func TestSyncCommandRequiresTargets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	if _, err := runCLI(t, configPath, "sync"); err == nil {
		t.Fatal("expected error when neither --user nor --id is given")
	}
}

func TestSyncCommandPublishesToDirectory(t *testing.T) {
	server := newAnimeServer(t)
	publishDir := t.TempDir()
	cfg := testsupport.NewConfig(t,
		testsupport.WithBaseURL(server.URL),
		testsupport.WithPublishDir(publishDir),
	)
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "sync", "--id", "7", "--publish")
	if err != nil {
		t.Fatalf("sync --publish: %v\n%s", err, out)
	}
	requireContains(t, out, "Published 2 artifact(s)")

	for _, name := range []string{"catalog-db", "summary-csv"} {
		if _, err := os.Stat(filepath.Join(publishDir, name)); err != nil {
			t.Fatalf("expected published artifact %s: %v", name, err)
		}
	}
}

func TestFetchThenIngestCommands(t *testing.T) {
	server := newAnimeServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL))
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, configPath, "fetch", "--id", "11", "--id", "12")
	if err != nil {
		t.Fatalf("fetch: %v\n%s", err, out)
	}
	requireContains(t, out, "2 fetched")

	out, err = runCLI(t, configPath, "ingest")
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	requireContains(t, out, "Ingested 2 row(s)")
}

func TestExportCommandRendersPreviewTable(t *testing.T) {
	server := newAnimeServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL))
	configPath := writeTestConfig(t, cfg)

	if out, err := runCLI(t, configPath, "sync", "--id", "5"); err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}

	out, err := runCLI(t, configPath, "export")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	requireContains(t, out, "Summary written to")
	requireContains(t, out, "TITLE")
	requireContains(t, out, "Title 5")
}

func TestExportCommandWritesStdout(t *testing.T) {
	server := newAnimeServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(server.URL))
	configPath := writeTestConfig(t, cfg)

	if out, err := runCLI(t, configPath, "sync", "--id", "3"); err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}

	out, err := runCLI(t, configPath, "export", "--out", "-")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	requireContains(t, out, "id,title,subtype")
	requireContains(t, out, "Title 3")
}
