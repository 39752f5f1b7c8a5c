// Package workspace reads and writes the workspace manifests the migrate
// command touches: package.json and nx.json. It also
// resolves the versions of packages currently installed in the workspace.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/jsonutil"
)

// PackageJSONFile is the workspace manifest file name.
const PackageJSONFile = "package.json"

// Dependency section names within package.json.
const (
	SectionDependencies    = "dependencies"
	SectionDevDependencies = "devDependencies"
)

// PackageJSON is a parsed package.json that can be mutated and written
// back without disturbing unrelated fields or their order.
type PackageJSON struct {
	fields          *jsonutil.Object
	trailingNewline bool
}

// ReadPackageJSON reads and parses the manifest at root. Returns
// os.ErrNotExist (wrapped) when the file is absent.
func ReadPackageJSON(fs fsops.FS, root string) (*PackageJSON, error) {
	data, err := fs.ReadFile(filepath.Join(root, PackageJSONFile))
	if err != nil {
		return nil, err
	}
	return ParsePackageJSON(data)
}

// ParsePackageJSON parses manifest content.
func ParsePackageJSON(data []byte) (*PackageJSON, error) {
	fields := jsonutil.NewObject()
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, fmt.Errorf("invalid package.json: %w", err)
	}
	return &PackageJSON{
		fields:          fields,
		trailingNewline: len(data) > 0 && data[len(data)-1] == '\n',
	}, nil
}

// Name returns the manifest's name field.
func (p *PackageJSON) Name() string {
	name, _ := p.fields.GetString("name")
	return name
}

func (p *PackageJSON) section(name string) map[string]string {
	obj, ok, err := p.fields.GetObject(name)
	if !ok || err != nil {
		return nil
	}
	out := make(map[string]string, obj.Len())
	for _, key := range obj.Keys() {
		if v, ok := obj.GetString(key); ok {
			out[key] = v
		}
	}
	return out
}

// Dependencies returns a copy of the dependencies section.
func (p *PackageJSON) Dependencies() map[string]string {
	return p.section(SectionDependencies)
}

// DevDependencies returns a copy of the devDependencies section.
func (p *PackageJSON) DevDependencies() map[string]string {
	return p.section(SectionDevDependencies)
}

// HasDependency reports whether name is a direct dependency.
func (p *PackageJSON) HasDependency(name string) bool {
	_, ok := p.Dependencies()[name]
	return ok
}

// HasDevDependency reports whether name is a direct dev-dependency.
func (p *PackageJSON) HasDevDependency(name string) bool {
	_, ok := p.DevDependencies()[name]
	return ok
}

// SetInSection records version for name under the given dependency
// section, creating the section if absent.
func (p *PackageJSON) SetInSection(section, name, version string) error {
	obj, ok, err := p.fields.GetObject(section)
	if err != nil {
		return fmt.Errorf("invalid %s section: %w", section, err)
	}
	if !ok {
		obj = jsonutil.NewObject()
	}
	obj.Set(name, jsonutil.String(version))
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	p.fields.Set(section, raw)
	return nil
}

// DependencySnapshot serializes the dependency and devDependency
// sections; the runner hashes it to detect dependency changes across a
// migration run.
func (p *PackageJSON) DependencySnapshot() []byte {
	snapshot := struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}{
		Dependencies:    p.Dependencies(),
		DevDependencies: p.DevDependencies(),
	}
	data, _ := json.Marshal(snapshot)
	return data
}

// Marshal serializes the manifest, preserving field order and the
// original trailing-newline formatting.
func (p *PackageJSON) Marshal() ([]byte, error) {
	compact, err := json.Marshal(p.fields)
	if err != nil {
		return nil, err
	}
	out, err := jsonutil.Indent(compact)
	if err != nil {
		return nil, err
	}
	if p.trailingNewline {
		out = append(out, '\n')
	}
	return out, nil
}

// Write serializes the manifest back to root.
func (p *PackageJSON) Write(fs fsops.FS, root string) error {
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize package.json: %w", err)
	}
	return fs.AtomicWrite(filepath.Join(root, PackageJSONFile), data, 0644)
}

// IsNotExist reports whether err means the manifest file was absent.
func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
