package registry

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/planner"
)

func mustPackageGroup(t *testing.T, raw string) planner.PackageGroup {
	t.Helper()
	var g planner.PackageGroup
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		t.Fatalf("invalid package group fixture: %v", err)
	}
	return g
}

func newTestFetcher(t *testing.T) (*Fetcher, *FakeClient) {
	t.Helper()
	client := NewFakeClient()
	return NewFetcher(client, fsops.NewRealFS()), client
}

func TestFetcher_NoConfig(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetResolution("plain", "2.0.0", "2.0.0")

	doc, err := f.Fetch(context.Background(), "plain", "2.0.0")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.Version != "2.0.0" {
		t.Errorf("version = %q", doc.Version)
	}
	if len(doc.Generators) != 0 || len(doc.PackageGroup) != 0 {
		t.Error("expected bare document for config-less package")
	}
}

func TestFetcher_ConfigWithoutMigrationsFile(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetResolution("grouped", "2.0.0", "2.0.0")
	client.SetConfig("grouped", "2.0.0", &MigrationsConfig{
		PackageGroup: mustPackageGroup(t, `[{"package":"sibling","version":"*"}]`),
	})

	doc, err := f.Fetch(context.Background(), "grouped", "2.0.0")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(doc.PackageGroup) != 1 || doc.PackageGroup[0].Package != "sibling" {
		t.Errorf("unexpected package group: %+v", doc.PackageGroup)
	}
}

func TestFetcher_TarballPath(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetResolution("full", "2.0.0", "2.0.0")
	client.SetConfig("full", "2.0.0", &MigrationsConfig{MigrationsFile: "migrations.json"})
	client.SetDocument("full", "2.0.0", []byte(`{
		"generators": {
			"add-thing": {"version": "1.5.0", "implementation": "./migrations/add-thing"}
		}
	}`))

	doc, err := f.Fetch(context.Background(), "full", "2.0.0")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.Version != "2.0.0" {
		t.Errorf("version = %q", doc.Version)
	}
	if len(doc.Generators) != 1 || doc.Generators[0].Name != "add-thing" {
		t.Errorf("unexpected generators: %+v", doc.Generators)
	}
}

func TestFetcher_SchematicsRewrittenToGenerators(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetResolution("legacy", "13.0.0", "13.0.0")
	client.SetConfig("legacy", "13.0.0", &MigrationsConfig{MigrationsFile: "migrations.json"})
	client.SetDocument("legacy", "13.0.0", []byte(`{
		"schematics": {
			"old-style": {"version": "13.0.0", "factory": "./migrations/old-style"}
		}
	}`))

	doc, err := f.Fetch(context.Background(), "legacy", "13.0.0")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(doc.Generators) != 1 || doc.Generators[0].Name != "old-style" {
		t.Errorf("schematics should be rewritten to generators, got %+v", doc.Generators)
	}
	if doc.Schematics != nil {
		t.Error("schematics key should be cleared after rewrite")
	}
}

func TestFetcher_MemoizesResolution(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetResolution("pkg", "latest", "2.0.0")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(ctx, "pkg", "latest"); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}

	if calls := client.ResolveCalls["pkg@latest"]; calls != 1 {
		t.Errorf("expected 1 resolution request, got %d", calls)
	}
}

func TestFetcher_ReusesDocForResolvedVersion(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetResolution("pkg", "2.0.0", "2.0.0")
	client.SetResolution("pkg", "latest", "2.0.0")
	client.SetConfig("pkg", "2.0.0", &MigrationsConfig{MigrationsFile: "migrations.json"})
	client.SetDocument("pkg", "2.0.0", []byte(`{"generators":{"g":{"version":"2.0.0"}}}`))

	ctx := context.Background()
	first, err := f.Fetch(ctx, "pkg", "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Fetch(ctx, "pkg", "latest")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("expected the range request to reuse the concrete version's document")
	}
}

func TestFetcher_NoMatchingVersion(t *testing.T) {
	f, client := newTestFetcher(t)
	_ = client

	_, err := f.Fetch(context.Background(), "ghost", "9.9.9")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "No matching version") {
		t.Errorf("error should carry the registry phrasing, got %v", err)
	}
}

func TestFetcher_InstallFallback(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetRegistryDown(true)
	client.SetManifest("pkg", "2.0.0", []byte(`{
		"name": "pkg",
		"version": "2.0.0",
		"nx-migrations": "migrations.json"
	}`))
	client.SetDocument("pkg", "2.0.0", []byte(`{"generators":{"g":{"version":"2.0.0"}}}`))

	doc, err := f.Fetch(context.Background(), "pkg", "2.0.0")
	if err != nil {
		t.Fatalf("expected install fallback to succeed, got %v", err)
	}
	if doc.Version != "2.0.0" || len(doc.Generators) != 1 {
		t.Errorf("unexpected fallback document: %+v", doc)
	}
}

func TestFetcher_InstallFallbackWithoutConfig(t *testing.T) {
	f, client := newTestFetcher(t)
	client.SetRegistryDown(true)
	client.SetManifest("pkg", "2.0.0", []byte(`{"name":"pkg","version":"2.0.0"}`))

	doc, err := f.Fetch(context.Background(), "pkg", "2.0.0")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.Version != "2.0.0" || len(doc.Generators) != 0 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestParseMigrationsConfigValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantNil  bool
		wantFile string
		wantPkgs int
	}{
		{name: "absent", raw: "", wantNil: true},
		{name: "null", raw: "null", wantNil: true},
		{name: "string form", raw: `"migrations.json"`, wantFile: "migrations.json"},
		{
			name:     "object form",
			raw:      `{"migrations":"./migrations.json","packageGroup":["a","b"]}`,
			wantFile: "./migrations.json",
			wantPkgs: 2,
		},
		{name: "group only", raw: `{"packageGroup":{"a":"*"}}`, wantPkgs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseMigrationsConfigValue([]byte(tt.raw))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if tt.wantNil {
				if cfg != nil {
					t.Fatalf("expected nil config, got %+v", cfg)
				}
				return
			}
			if cfg == nil {
				t.Fatal("expected config")
			}
			if cfg.MigrationsFile != tt.wantFile {
				t.Errorf("migrations file = %q, want %q", cfg.MigrationsFile, tt.wantFile)
			}
			if len(cfg.PackageGroup) != tt.wantPkgs {
				t.Errorf("package group size = %d, want %d", len(cfg.PackageGroup), tt.wantPkgs)
			}
		})
	}
}
