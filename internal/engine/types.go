package engine

import (
	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/runner"
)

// MigrateRequest represents a request to plan (and persist) a migration.
type MigrateRequest struct {
	// CWD is the workspace directory.
	CWD string

	// TargetPackage is the package being raised.
	TargetPackage string

	// TargetVersion is the requested version, range, or dist-tag.
	TargetVersion string

	// From overrides what the planner considers installed.
	From map[string]string

	// To overrides the version the planner aims at for listed packages.
	To map[string]string

	// Interactive enables x-prompt gating.
	Interactive bool

	// ExcludeAppliedMigrations enables the skip-detection gate when
	// collecting migrations.
	ExcludeAppliedMigrations bool

	// DryRun computes the plan without writing anything.
	DryRun bool
}

// MigrateResult represents the outcome of planning.
type MigrateResult struct {
	// PackageUpdates is the computed package-version plan.
	PackageUpdates map[string]planner.PackageUpdate

	// PackageOrder is the order packages entered the plan.
	PackageOrder []string

	// Migrations is the ordered migration list, including any synthetic
	// prepended entry.
	Migrations []planner.MigrationEntry

	// WroteMigrations reports whether migrations.json was written.
	WroteMigrations bool
}

// RunRequest represents a request to execute a recorded migrations file.
type RunRequest struct {
	// CWD is the workspace directory.
	CWD string

	// File is the migrations file; defaults to migrations.json at the
	// workspace root. Relative paths resolve against CWD.
	File string

	// IfExists silently no-ops when the migrations file is absent.
	IfExists bool

	// CreateCommits makes a git commit after each migration.
	CreateCommits bool

	// CommitPrefix prefixes each commit message.
	CommitPrefix string

	// SkipInstall suppresses the post-run package-manager install.
	SkipInstall bool
}

// RunResult represents the outcome of executing migrations.
type RunResult struct {
	// Ran reports whether a migrations file was found and executed.
	Ran bool

	// Run holds the per-migration outcomes when Ran is true.
	Run *runner.Result
}
