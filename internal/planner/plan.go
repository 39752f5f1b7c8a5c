package planner

import "context"

// MigrationEntry is one migration in the emitted plan, ready to be
// persisted to migrations.json and later executed by the runner.
type MigrationEntry struct {
	Package        string            `json:"package"`
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Description    string            `json:"description,omitempty"`
	CLI            string            `json:"cli,omitempty"`
	Implementation string            `json:"implementation,omitempty"`
	Factory        string            `json:"factory,omitempty"`
	Requires       map[string]string `json:"requires,omitempty"`
}

// MigrationsFile is the persisted migrations.json shape.
type MigrationsFile struct {
	Migrations []MigrationEntry `json:"migrations"`
}

// MigrationPlan is the planner's output: the package-version upgrades to
// apply and the ordered migrations to run.
type MigrationPlan struct {
	// PackageUpdates maps package name to its planned update.
	PackageUpdates map[string]PackageUpdate

	// PackageOrder records the order packages entered the plan; the
	// migrations list and the manifest writer follow it.
	PackageOrder []string

	// Migrations is the ordered migration list.
	Migrations []MigrationEntry
}

// UpdateFor returns the planned update for a package.
func (p *MigrationPlan) UpdateFor(name string) (PackageUpdate, bool) {
	u, ok := p.PackageUpdates[name]
	return u, ok
}

// Fetcher retrieves the migration document for a package at a version or
// range. Implementations memoize: the planner fetches the same
// package-version pair from both planning phases.
type Fetcher interface {
	Fetch(ctx context.Context, name, version string) (*MigrationDocument, error)
}

// Manifest exposes the direct-dependency membership checks the update
// filter needs.
type Manifest interface {
	HasDependency(name string) bool
	HasDevDependency(name string) bool
}

// InstalledVersions resolves the version of a package currently present
// in the workspace. Overrides shadow what is on disk; "" means not
// installed.
type InstalledVersions interface {
	Resolve(name string, overrides map[string]string) string
}

// Prompter gates interactive updates carrying an x-prompt.
type Prompter interface {
	Confirm(message string) (bool, error)
}
