package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FakeClient implements Client from in-memory fixtures for testing.
type FakeClient struct {
	mu          sync.Mutex
	resolutions map[string]string
	configs     map[string]*MigrationsConfig
	documents   map[string][]byte
	manifests   map[string][]byte

	registryDown bool

	// ResolveCalls counts ResolveVersion invocations per "name@spec".
	ResolveCalls map[string]int
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		resolutions:  make(map[string]string),
		configs:      make(map[string]*MigrationsConfig),
		documents:    make(map[string][]byte),
		manifests:    make(map[string][]byte),
		ResolveCalls: make(map[string]int),
	}
}

func fakeKey(name, version string) string {
	return name + "@" + version
}

// SetResolution maps a requested spec to its canonical version.
func (c *FakeClient) SetResolution(name, spec, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolutions[fakeKey(name, spec)] = version
}

// SetConfig sets the migration config advertised for a concrete version.
func (c *FakeClient) SetConfig(name, version string, cfg *MigrationsConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[fakeKey(name, version)] = cfg
}

// SetDocument sets the migrations-file content served from the tarball
// for a concrete version.
func (c *FakeClient) SetDocument(name, version string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documents[fakeKey(name, version)] = content
}

// SetManifest sets the package.json served by the scratch-install
// fallback for a concrete version.
func (c *FakeClient) SetManifest(name, version string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests[fakeKey(name, version)] = content
}

// SetRegistryDown makes every registry primitive fail, forcing the
// install fallback.
func (c *FakeClient) SetRegistryDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registryDown = down
}

// ResolveVersion resolves from the fixture table.
func (c *FakeClient) ResolveVersion(ctx context.Context, name, spec string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResolveCalls[fakeKey(name, spec)]++
	if c.registryDown {
		return "", errors.New("registry unreachable")
	}
	if v, ok := c.resolutions[fakeKey(name, spec)]; ok {
		return v, nil
	}
	return "", &NoMatchingVersionError{Name: name, Spec: spec}
}

// MigrationsConfig returns the fixture config.
func (c *FakeClient) MigrationsConfig(ctx context.Context, name, version string) (*MigrationsConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registryDown {
		return nil, errors.New("registry unreachable")
	}
	return c.configs[fakeKey(name, version)], nil
}

// DownloadTarball materializes the fixture document under destDir the
// way an extracted npm tarball would look.
func (c *FakeClient) DownloadTarball(ctx context.Context, name, version, destDir string) (string, error) {
	c.mu.Lock()
	content, ok := c.documents[fakeKey(name, version)]
	cfg := c.configs[fakeKey(name, version)]
	down := c.registryDown
	c.mu.Unlock()

	if down {
		return "", errors.New("registry unreachable")
	}
	if !ok || cfg == nil || cfg.MigrationsFile == "" {
		return "", fmt.Errorf("no tarball fixture for %s@%s", name, version)
	}

	pkgDir := filepath.Join(destDir, "package")
	path := filepath.Join(pkgDir, cfg.MigrationsFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", err
	}
	return pkgDir, nil
}

// InstallToScratch materializes the fixture package under dir the way a
// scratch install would.
func (c *FakeClient) InstallToScratch(ctx context.Context, name, version, dir string) (string, error) {
	c.mu.Lock()
	manifest, ok := c.manifests[fakeKey(name, version)]
	content := c.documents[fakeKey(name, version)]
	c.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("no installable fixture for %s@%s", name, version)
	}

	pkgDir := filepath.Join(dir, "node_modules", name)
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "package.json"), manifest, 0644); err != nil {
		return "", err
	}
	if content != nil {
		if err := os.WriteFile(filepath.Join(pkgDir, "migrations.json"), content, 0644); err != nil {
			return "", err
		}
	}
	return pkgDir, nil
}
