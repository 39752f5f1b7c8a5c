package workspace

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/danieljhkim/monomigrate/internal/fsops"
)

// The tool root was published as @nrwl/workspace before the rename;
// resolution of "nx" falls back to the legacy name.
const (
	ToolPackage            = "nx"
	workspacePackageLegacy = "@nrwl/workspace"
)

// InstalledResolver looks up the version of a package currently present
// in the workspace by walking module-resolution paths rooted at the
// workspace directory. Positive results are cached per resolver.
type InstalledResolver struct {
	fs   fsops.FS
	root string

	mu    sync.Mutex
	cache map[string]string
}

// NewInstalledResolver creates a resolver rooted at the workspace
// directory.
func NewInstalledResolver(fs fsops.FS, root string) *InstalledResolver {
	return &InstalledResolver{
		fs:    fs,
		root:  root,
		cache: make(map[string]string),
	}
}

// Resolve returns the installed version of name, or "" if the package is
// not installed. Caller-supplied overrides shadow what is on disk.
func (r *InstalledResolver) Resolve(name string, overrides map[string]string) string {
	if v, ok := overrides[name]; ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[name]; ok {
		return v
	}

	v := r.lookup(name)
	if v == "" && name == ToolPackage {
		v = r.lookup(workspacePackageLegacy)
	}
	if v != "" {
		r.cache[name] = v
	}
	return v
}

// lookup walks from the workspace root upward, checking each
// node_modules directory the way module resolution would.
func (r *InstalledResolver) lookup(name string) string {
	dir := r.root
	for {
		manifest := filepath.Join(dir, "node_modules", name, PackageJSONFile)
		if data, err := r.fs.ReadFile(manifest); err == nil {
			var pkg struct {
				Version string `json:"version"`
			}
			if err := json.Unmarshal(data, &pkg); err == nil && pkg.Version != "" {
				return pkg.Version
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
