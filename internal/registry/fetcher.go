package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/planner"
)

// Fetcher resolves package versions and retrieves migration documents,
// memoizing both steps per instance. Caches are planner-scoped: each
// invocation starts empty.
type Fetcher struct {
	client Client
	fs     fsops.FS

	group singleflight.Group

	mu               sync.Mutex
	resolvedVersions map[string]string
	migrations       map[string]*planner.MigrationDocument
}

// NewFetcher creates a Fetcher over the given registry client.
func NewFetcher(client Client, fs fsops.FS) *Fetcher {
	return &Fetcher{
		client:           client,
		fs:               fs,
		resolvedVersions: make(map[string]string),
		migrations:       make(map[string]*planner.MigrationDocument),
	}
}

func cacheKey(name, version string) string {
	return name + "-" + version
}

// Fetch returns the migration document for name at the requested version
// or range. Concurrent callers for the same key join the same in-flight
// request; completed results are memoized.
func (f *Fetcher) Fetch(ctx context.Context, name, version string) (*planner.MigrationDocument, error) {
	key := cacheKey(name, version)

	f.mu.Lock()
	if doc, ok := f.migrations[key]; ok {
		f.mu.Unlock()
		return doc, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do("fetch:"+key, func() (interface{}, error) {
		doc, err := f.fetch(ctx, name, version)
		if err != nil {
			return nil, err
		}
		normalizeDocument(doc)
		f.mu.Lock()
		f.migrations[key] = doc
		f.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*planner.MigrationDocument), nil
}

func (f *Fetcher) fetch(ctx context.Context, name, version string) (*planner.MigrationDocument, error) {
	doc, registryErr := f.fetchFromRegistry(ctx, name, version)
	if registryErr == nil {
		return doc, nil
	}
	// Any registry-path failure falls back to a scratch install.
	return f.fetchFromInstall(ctx, name, version, registryErr)
}

// resolveVersion maps a requested range or tag to the registry's
// canonical version, memoized per (name, requestedVersion).
func (f *Fetcher) resolveVersion(ctx context.Context, name, version string) (string, error) {
	key := cacheKey(name, version)

	f.mu.Lock()
	if v, ok := f.resolvedVersions[key]; ok {
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do("resolve:"+key, func() (interface{}, error) {
		resolved, err := f.client.ResolveVersion(ctx, name, version)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.resolvedVersions[key] = resolved
		f.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (f *Fetcher) fetchFromRegistry(ctx context.Context, name, version string) (*planner.MigrationDocument, error) {
	resolved, err := f.resolveVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}

	// A range request may resolve to a version already fetched.
	if resolved != version {
		f.mu.Lock()
		if doc, ok := f.migrations[cacheKey(name, resolved)]; ok {
			f.mu.Unlock()
			return doc, nil
		}
		f.mu.Unlock()
	}

	cfg, err := f.client.MigrationsConfig(ctx, name, resolved)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &planner.MigrationDocument{Version: resolved}, nil
	}
	if cfg.MigrationsFile == "" {
		return &planner.MigrationDocument{Version: resolved, PackageGroup: cfg.PackageGroup}, nil
	}

	scratch, err := f.fs.MkdirTemp("monomigrate-fetch-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.fs.RemoveAll(scratch)
	}()

	pkgDir, err := f.client.DownloadTarball(ctx, name, resolved, scratch)
	if err != nil {
		return nil, err
	}
	doc, err := readMigrationsFile(f.fs, pkgDir, cfg.MigrationsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations file %q from %s@%s: %w",
			cfg.MigrationsFile, name, resolved, err)
	}
	if len(cfg.PackageGroup) > 0 {
		doc.PackageGroup = cfg.PackageGroup
	}
	doc.Version = resolved
	return doc, nil
}

// fetchFromInstall is the slow fallback: install the package into a
// scratch directory and read the document from disk. The scratch
// directory is cleaned up on success and error alike.
func (f *Fetcher) fetchFromInstall(ctx context.Context, name, version string, registryErr error) (*planner.MigrationDocument, error) {
	scratch, err := f.fs.MkdirTemp("monomigrate-install-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.fs.RemoveAll(scratch)
	}()

	pkgDir, err := f.client.InstallToScratch(ctx, name, version, scratch)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch migrations for %s@%s: %v; %w", name, version, err, registryErr)
	}

	data, err := f.fs.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json of installed %s@%s: %w", name, version, err)
	}
	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid package.json of installed %s@%s: %w", name, version, err)
	}
	resolved := manifest.Version
	if resolved == "" {
		resolved = version
	}

	cfg, err := manifest.migrationsConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &planner.MigrationDocument{Version: resolved}, nil
	}
	if cfg.MigrationsFile == "" {
		return &planner.MigrationDocument{Version: resolved, PackageGroup: cfg.PackageGroup}, nil
	}

	doc, err := readMigrationsFile(f.fs, pkgDir, cfg.MigrationsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations file %q from %s@%s: %w",
			cfg.MigrationsFile, name, resolved, err)
	}
	if len(cfg.PackageGroup) > 0 {
		doc.PackageGroup = cfg.PackageGroup
	}
	doc.Version = resolved
	return doc, nil
}

func readMigrationsFile(fs fsops.FS, pkgDir, file string) (*planner.MigrationDocument, error) {
	data, err := fs.ReadFile(filepath.Join(pkgDir, file))
	if err != nil {
		return nil, err
	}
	var doc planner.MigrationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// normalizeDocument rewrites the legacy schematics key to generators.
func normalizeDocument(doc *planner.MigrationDocument) {
	if len(doc.Generators) == 0 && len(doc.Schematics) > 0 {
		doc.Generators = doc.Schematics
	}
	doc.Schematics = nil
}
