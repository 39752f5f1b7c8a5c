package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danieljhkim/monomigrate/internal/clock"
	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/gitx"
	"github.com/danieljhkim/monomigrate/internal/hash"
	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/registry"
	"github.com/danieljhkim/monomigrate/internal/runner"
)

func newTestEngine(client registry.Client) (*Engine, *bytes.Buffer) {
	var out bytes.Buffer
	e := New(
		fsops.NewRealFS(),
		gitx.NewFakeGit(),
		clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		hash.NewSHA256Hasher(),
		client,
		runner.NewBuiltinResolver(),
		nil,
		nil,
		&out,
	)
	return e, &out
}

func setupEngineWorkspace(t *testing.T, manifest string, installed map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	for name, version := range installed {
		dir := filepath.Join(root, "node_modules", name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		content := `{"name":"` + name + `","version":"` + version + `"}`
		if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestEngine_Migrate_WritesManifestAndMigrations(t *testing.T) {
	manifest := `{
  "name": "acme",
  "dependencies": {
    "pkg": "1.0.0"
  },
  "devDependencies": {
    "tool": "1.0.0"
  }
}
`
	root := setupEngineWorkspace(t, manifest, map[string]string{
		"pkg":  "1.0.0",
		"tool": "1.0.0",
	})

	client := registry.NewFakeClient()
	client.SetResolution("pkg", "2.0.0", "2.0.0")
	client.SetConfig("pkg", "2.0.0", &registry.MigrationsConfig{MigrationsFile: "migrations.json"})
	client.SetDocument("pkg", "2.0.0", []byte(`{
		"packageJsonUpdates": {
			"u": {
				"version": "2.0.0",
				"packages": {
					"tool": {"version": "2.0.0"},
					"brand-new": {"version": "1.0.0", "alwaysAddToPackageJson": true}
				}
			}
		},
		"generators": {
			"m1": {"version": "1.5.0", "implementation": "./m1"},
			"m2": {"version": "2.5.0", "implementation": "./m2"}
		}
	}`))
	client.SetResolution("tool", "2.0.0", "2.0.0")
	client.SetResolution("brand-new", "1.0.0", "1.0.0")

	e, _ := newTestEngine(client)
	result, err := e.Migrate(context.Background(), &MigrateRequest{
		CWD:           root,
		TargetPackage: "pkg",
		TargetVersion: "2.0.0",
	})
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	var written struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatal(err)
	}
	if written.Dependencies["pkg"] != "2.0.0" {
		t.Errorf("pkg = %q", written.Dependencies["pkg"])
	}
	if written.DevDependencies["tool"] != "2.0.0" {
		t.Errorf("tool should be updated in devDependencies, got %q", written.DevDependencies["tool"])
	}
	if written.Dependencies["brand-new"] != "1.0.0" {
		t.Errorf("brand-new should be inserted into dependencies, got %q", written.Dependencies["brand-new"])
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("trailing newline must be preserved")
	}

	if !result.WroteMigrations {
		t.Fatal("expected migrations.json to be written")
	}
	migData, err := os.ReadFile(filepath.Join(root, MigrationsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var migFile planner.MigrationsFile
	if err := json.Unmarshal(migData, &migFile); err != nil {
		t.Fatal(err)
	}
	if len(migFile.Migrations) != 1 || migFile.Migrations[0].Name != "m1" {
		t.Errorf("migrations = %+v", migFile.Migrations)
	}
}

func TestEngine_Migrate_DryRun(t *testing.T) {
	root := setupEngineWorkspace(t, "{\n  \"dependencies\": {\n    \"pkg\": \"1.0.0\"\n  }\n}\n",
		map[string]string{"pkg": "1.0.0"})

	client := registry.NewFakeClient()
	client.SetResolution("pkg", "2.0.0", "2.0.0")

	e, _ := newTestEngine(client)
	result, err := e.Migrate(context.Background(), &MigrateRequest{
		CWD:           root,
		TargetPackage: "pkg",
		TargetVersion: "2.0.0",
		DryRun:        true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.PackageUpdates["pkg"].Version != "2.0.0" {
		t.Errorf("plan = %+v", result.PackageUpdates)
	}

	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "2.0.0") {
		t.Error("dry run must not touch package.json")
	}
	if _, err := os.Stat(filepath.Join(root, MigrationsFileName)); !os.IsNotExist(err) {
		t.Error("dry run must not write migrations.json")
	}
}

func TestEngine_Migrate_SyntheticPrepend(t *testing.T) {
	manifest := `{
  "devDependencies": {
    "@nrwl/workspace": "15.6.0"
  }
}
`
	root := setupEngineWorkspace(t, manifest, map[string]string{"@nrwl/workspace": "15.6.0"})

	client := registry.NewFakeClient()
	client.SetResolution("@nrwl/workspace", "15.8.0", "15.8.0")

	e, _ := newTestEngine(client)
	result, err := e.Migrate(context.Background(), &MigrateRequest{
		CWD:           root,
		TargetPackage: "@nrwl/workspace",
		TargetVersion: "15.8.0",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Migrations) == 0 {
		t.Fatal("expected the synthetic migration")
	}
	first := result.Migrations[0]
	if first.Name != "15-7-0-split-configuration-into-project-json-files" ||
		first.Package != "@nrwl/workspace" || first.Version != "15.7.0-beta.0" || first.CLI != "nx" {
		t.Errorf("synthetic entry = %+v", first)
	}
	if !result.WroteMigrations {
		t.Error("the synthetic entry alone should produce a migrations file")
	}
}

func TestEngine_Migrate_NoSyntheticPrependPastThreshold(t *testing.T) {
	manifest := `{
  "devDependencies": {
    "@nrwl/workspace": "15.7.0"
  }
}
`
	root := setupEngineWorkspace(t, manifest, map[string]string{"@nrwl/workspace": "15.7.0"})

	client := registry.NewFakeClient()
	client.SetResolution("@nrwl/workspace", "15.8.0", "15.8.0")

	e, _ := newTestEngine(client)
	result, err := e.Migrate(context.Background(), &MigrateRequest{
		CWD:           root,
		TargetPackage: "@nrwl/workspace",
		TargetVersion: "15.8.0",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range result.Migrations {
		if m.Name == "15-7-0-split-configuration-into-project-json-files" {
			t.Error("already-split workspace must not re-run the split migration")
		}
	}
}

func TestEngine_Migrate_UpdatesInstallationBlock(t *testing.T) {
	manifest := `{
  "devDependencies": {
    "nx": "15.0.0",
    "@nrwl/jest": "15.0.0"
  }
}
`
	root := setupEngineWorkspace(t, manifest, map[string]string{
		"nx":         "15.0.0",
		"@nrwl/jest": "15.0.0",
	})
	nxJSON := `{
  "installation": {
    "version": "15.0.0",
    "plugins": {
      "@nrwl/jest": "15.0.0"
    }
  }
}
`
	if err := os.WriteFile(filepath.Join(root, "nx.json"), []byte(nxJSON), 0644); err != nil {
		t.Fatal(err)
	}

	client := registry.NewFakeClient()
	client.SetResolution("nx", "16.0.0", "16.0.0")
	client.SetConfig("nx", "16.0.0", &registry.MigrationsConfig{MigrationsFile: "migrations.json"})
	client.SetDocument("nx", "16.0.0", []byte(`{
		"packageJsonUpdates": {
			"u": {"version": "16.0.0", "packages": {"@nrwl/jest": {"version": "16.0.0"}}}
		}
	}`))
	client.SetResolution("@nrwl/jest", "16.0.0", "16.0.0")

	e, _ := newTestEngine(client)
	if _, err := e.Migrate(context.Background(), &MigrateRequest{
		CWD:           root,
		TargetPackage: "nx",
		TargetVersion: "16.0.0",
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "nx.json"))
	if err != nil {
		t.Fatal(err)
	}
	var written struct {
		Installation struct {
			Version string            `json:"version"`
			Plugins map[string]string `json:"plugins"`
		} `json:"installation"`
	}
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatal(err)
	}
	if written.Installation.Version != "16.0.0" {
		t.Errorf("installation.version = %q", written.Installation.Version)
	}
	if written.Installation.Plugins["@nrwl/jest"] != "16.0.0" {
		t.Errorf("plugin pin = %q", written.Installation.Plugins["@nrwl/jest"])
	}
}

func TestEngine_Migrate_NoManifest(t *testing.T) {
	client := registry.NewFakeClient()
	e, _ := newTestEngine(client)
	_, err := e.Migrate(context.Background(), &MigrateRequest{
		CWD:           t.TempDir(),
		TargetPackage: "pkg",
		TargetVersion: "2.0.0",
	})
	if err == nil || !strings.Contains(err.Error(), "no package.json") {
		t.Errorf("expected missing-manifest error, got %v", err)
	}
}

func TestEngine_Run(t *testing.T) {
	root := setupEngineWorkspace(t, "{\n  \"dependencies\": {}\n}\n", nil)
	migrations := `{
  "migrations": [
    {"package": "pkg", "name": "m1", "version": "2.0.0", "implementation": "./m1", "cli": "nx"}
  ]
}
`
	if err := os.WriteFile(filepath.Join(root, "migrations.json"), []byte(migrations), 0644); err != nil {
		t.Fatal(err)
	}

	client := registry.NewFakeClient()
	e, _ := newTestEngine(client)
	resolver := runner.NewBuiltinResolver()
	ran := false
	resolver.Register("./m1", func(tree runner.Tree, options map[string]interface{}) error {
		ran = true
		return tree.Write("touched.txt", []byte("x"))
	})
	e.resolver = resolver

	result, err := e.Run(context.Background(), &RunRequest{CWD: root})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Ran || !ran {
		t.Error("expected the migration to run")
	}
	if len(result.Run.Migrations) != 1 || !result.Run.Migrations[0].MadeChanges {
		t.Errorf("run result = %+v", result.Run)
	}
}

func TestEngine_Run_MissingFile(t *testing.T) {
	root := setupEngineWorkspace(t, "{}\n", nil)
	client := registry.NewFakeClient()
	e, _ := newTestEngine(client)

	if _, err := e.Run(context.Background(), &RunRequest{CWD: root}); err == nil {
		t.Error("expected error for missing migrations file")
	}

	result, err := e.Run(context.Background(), &RunRequest{CWD: root, IfExists: true})
	if err != nil {
		t.Fatalf("--if-exists should silence the missing file: %v", err)
	}
	if result.Ran {
		t.Error("nothing should have run")
	}
}
