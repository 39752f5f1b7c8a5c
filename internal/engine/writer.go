package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/jsonutil"
	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/semverx"
	"github.com/danieljhkim/monomigrate/internal/workspace"
)

// MigrationsFileName is the persisted migration list at the workspace
// root.
const MigrationsFileName = "migrations.json"

// splitThreshold is the version at which workspace configuration moved
// into per-project files; plans crossing it prepend the built-in split
// migration.
const splitThreshold = "15.7.0-beta.0"

var splitConfigurationMigration = planner.MigrationEntry{
	Version:        splitThreshold,
	Package:        workspacePackage,
	Name:           "15-7-0-split-configuration-into-project-json-files",
	Implementation: "./src/migrations/update-15-7-0/split-configuration-into-project-json-files",
	CLI:            "nx",
}

func crossesSplitThreshold(installed, planned string) bool {
	return semverx.Lt(installed, splitThreshold) && semverx.Lte(splitThreshold, planned)
}

// writeManifestUpdates rewrites package.json versions per the plan.
// Existing entries are updated in place (devDependencies take
// precedence); absent packages are inserted only when the plan says so.
func writeManifestUpdates(fs fsops.FS, root string, manifest *workspace.PackageJSON, plan *planner.MigrationPlan) error {
	if manifest == nil {
		return nil
	}
	for _, pkg := range plan.PackageOrder {
		update := plan.PackageUpdates[pkg]
		switch {
		case manifest.HasDevDependency(pkg):
			if err := manifest.SetInSection(workspace.SectionDevDependencies, pkg, update.Version); err != nil {
				return err
			}
		case manifest.HasDependency(pkg):
			if err := manifest.SetInSection(workspace.SectionDependencies, pkg, update.Version); err != nil {
				return err
			}
		case update.AddToPackageJson != "":
			if err := manifest.SetInSection(string(update.AddToPackageJson), pkg, update.Version); err != nil {
				return err
			}
		}
	}
	return manifest.Write(fs, root)
}

// writeInstallationUpdates updates the nx.json installation block pins.
// A workspace without nx.json or without an installation block is left
// untouched.
func writeInstallationUpdates(fs fsops.FS, root string, plan *planner.MigrationPlan) error {
	nx, err := workspace.ReadNxJSON(fs, root)
	if err != nil {
		if workspace.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !nx.HasInstallation() {
		return nil
	}

	tool, ok := plan.UpdateFor(workspace.ToolPackage)
	if !ok {
		return nil
	}
	versions := make(map[string]string, len(plan.PackageUpdates))
	for pkg, update := range plan.PackageUpdates {
		versions[pkg] = update.Version
	}
	if err := nx.UpdateInstallation(tool.Version, versions); err != nil {
		return err
	}
	return nx.Write(fs, root)
}

// writeMigrationsFile persists the ordered migration list; nothing is
// written when the list is empty.
func writeMigrationsFile(fs fsops.FS, root string, migrations []planner.MigrationEntry) (bool, error) {
	if len(migrations) == 0 {
		return false, nil
	}
	file := planner.MigrationsFile{Migrations: migrations}
	compact, err := json.Marshal(file)
	if err != nil {
		return false, fmt.Errorf("failed to serialize migrations: %w", err)
	}
	data, err := jsonutil.Indent(compact)
	if err != nil {
		return false, err
	}
	data = append(data, '\n')
	if err := fs.AtomicWrite(filepath.Join(root, MigrationsFileName), data, 0644); err != nil {
		return false, err
	}
	return true, nil
}
