package runner

import (
	"encoding/json"
	"fmt"

	"github.com/danieljhkim/monomigrate/internal/planner"
)

// BuiltinResolver resolves implementations from a registered table keyed
// by the migration's implementation (or factory) path. The tool ships
// its own migrations compiled in; workspace-local migration scripts are
// not executable from Go and surface as resolution errors.
type BuiltinResolver struct {
	implementations map[string]Implementation
}

// NewBuiltinResolver creates a resolver preloaded with the built-in
// migrations.
func NewBuiltinResolver() *BuiltinResolver {
	r := &BuiltinResolver{implementations: make(map[string]Implementation)}
	r.Register(SplitConfigurationImplementationPath, SplitConfigurationMigration)
	return r
}

// Register adds an implementation under its module path.
func (r *BuiltinResolver) Register(path string, impl Implementation) {
	r.implementations[path] = impl
}

// Resolve locates the implementation for a migration.
func (r *BuiltinResolver) Resolve(m planner.MigrationEntry, migrationsDir string) (Implementation, error) {
	path := m.Implementation
	if path == "" {
		path = m.Factory
	}
	if path == "" {
		return nil, fmt.Errorf("migration %s from %s declares no implementation", m.Name, m.Package)
	}
	if impl, ok := r.implementations[path]; ok {
		return impl, nil
	}
	return nil, fmt.Errorf("could not resolve implementation %q for %s (looked in %s)", path, m.Name, migrationsDir)
}

// SplitConfigurationImplementationPath is the module path of the
// configuration-split migration shipped with the tool.
const SplitConfigurationImplementationPath = "./src/migrations/update-15-7-0/split-configuration-into-project-json-files"

// SplitConfigurationMigration moves each project's configuration out of
// the central workspace.json into per-project project.json files.
func SplitConfigurationMigration(tree Tree, options map[string]interface{}) error {
	const workspaceFile = "workspace.json"
	if !tree.Exists(workspaceFile) {
		return nil
	}

	data, err := tree.Read(workspaceFile)
	if err != nil {
		return err
	}
	var config struct {
		Version  int                        `json:"version"`
		Projects map[string]json.RawMessage `json:"projects"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("invalid %s: %w", workspaceFile, err)
	}

	for name, raw := range config.Projects {
		// Entries that are plain strings already point at a project root.
		var alreadySplit string
		if err := json.Unmarshal(raw, &alreadySplit); err == nil {
			continue
		}

		var project map[string]json.RawMessage
		if err := json.Unmarshal(raw, &project); err != nil {
			return fmt.Errorf("invalid project %q in %s: %w", name, workspaceFile, err)
		}
		root := name
		if rawRoot, ok := project["root"]; ok {
			var s string
			if err := json.Unmarshal(rawRoot, &s); err == nil && s != "" {
				root = s
			}
		}

		out, err := json.MarshalIndent(project, "", "  ")
		if err != nil {
			return err
		}
		if err := tree.Write(root+"/project.json", append(out, '\n')); err != nil {
			return err
		}
	}

	return tree.Delete(workspaceFile)
}
