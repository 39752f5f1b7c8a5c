// Package registry talks to the package registry and retrieves migration
// documents.
//
// The Fetcher is the planner-facing surface: it resolves a requested
// range or dist-tag to a concrete version, pulls that version's
// migration document (registry-view fast path, tarball slow path,
// scratch-install fallback), and memoizes both steps so concurrent
// callers for the same key join the same in-flight request.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danieljhkim/monomigrate/internal/planner"
)

// MigrationsConfig is the migration-config shape a package advertises in
// its registry metadata: where its migrations file lives inside the
// package, and optionally its release group.
type MigrationsConfig struct {
	// MigrationsFile is the path of the migrations document inside the
	// package; empty when the package declares only a packageGroup.
	MigrationsFile string

	// PackageGroup is the release group declared alongside the config.
	PackageGroup planner.PackageGroup
}

// Client exposes the registry primitives the fetcher composes. All
// operations are opaque async calls against the configured registry.
type Client interface {
	// ResolveVersion resolves a range or dist-tag to a concrete version.
	// An unsatisfiable spec yields a *NoMatchingVersionError.
	ResolveVersion(ctx context.Context, name, spec string) (string, error)

	// MigrationsConfig returns the package's migration config for a
	// concrete version, or nil when the package declares none.
	MigrationsConfig(ctx context.Context, name, version string) (*MigrationsConfig, error)

	// DownloadTarball downloads and extracts the package tarball into
	// destDir, returning the extracted package directory.
	DownloadTarball(ctx context.Context, name, version, destDir string) (string, error)

	// InstallToScratch installs the package into a scratch directory
	// using the package manager and returns the installed package
	// directory.
	InstallToScratch(ctx context.Context, name, version, dir string) (string, error)
}

// NoMatchingVersionError reports an unsatisfiable version spec. The
// message intentionally carries the registry's "No matching version"
// phrasing; the planner keys remediation guidance off it.
type NoMatchingVersionError struct {
	Name string
	Spec string
}

func (e *NoMatchingVersionError) Error() string {
	return fmt.Sprintf("No matching version found for %s@%s", e.Name, e.Spec)
}

// packageManifest is the slice of a package.json the fetcher cares
// about: the version and the migration-config keys.
type packageManifest struct {
	Version      string          `json:"version"`
	NxMigrations json.RawMessage `json:"nx-migrations"`
	NgUpdate     json.RawMessage `json:"ng-update"`
}

// migrationsConfig decodes the manifest's migration-config key
// (nx-migrations, falling back to ng-update) through
// parseMigrationsConfigValue: either a plain string naming the migrations
// file, or an object with migrations and packageGroup fields.
func (m *packageManifest) migrationsConfig() (*MigrationsConfig, error) {
	raw := m.NxMigrations
	if len(raw) == 0 {
		raw = m.NgUpdate
	}
	return parseMigrationsConfigValue(raw)
}

func parseMigrationsConfigValue(raw json.RawMessage) (*MigrationsConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var file string
	if err := json.Unmarshal(raw, &file); err == nil {
		return &MigrationsConfig{MigrationsFile: file}, nil
	}

	var obj struct {
		Migrations   string               `json:"migrations"`
		PackageGroup planner.PackageGroup `json:"packageGroup"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid migrations config: %w", err)
	}
	return &MigrationsConfig{
		MigrationsFile: obj.Migrations,
		PackageGroup:   obj.PackageGroup,
	}, nil
}
