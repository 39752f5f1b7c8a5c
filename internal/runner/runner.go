package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/danieljhkim/monomigrate/internal/clock"
	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/gitx"
	"github.com/danieljhkim/monomigrate/internal/hash"
	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/semverx"
	"github.com/danieljhkim/monomigrate/internal/workspace"
)

// NativeCLI marks migrations executed through the built-in tree path;
// anything else is delegated to the adapter.
const NativeCLI = "nx"

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// Implementation is a migration's transformation function, invoked
// against the virtual tree.
type Implementation func(tree Tree, options map[string]interface{}) error

// Resolver locates a migration's implementation relative to the
// directory holding the migrations file.
type Resolver interface {
	Resolve(migration planner.MigrationEntry, migrationsDir string) (Implementation, error)
}

// AdapterResult is what an external-CLI adapter reports back.
type AdapterResult struct {
	MadeChanges  bool
	LoggingQueue []string
}

// Adapter executes migrations whose cli is not the native one.
type Adapter interface {
	Run(ctx context.Context, migration planner.MigrationEntry, workspaceRoot string) (*AdapterResult, error)
}

// Installer invokes the package manager after the run when the
// dependency set changed.
type Installer interface {
	Install(ctx context.Context, root string) error
}

// Options configures a migration run.
type Options struct {
	// WorkspaceRoot is the workspace directory.
	WorkspaceRoot string

	// MigrationsFile is the path of the migrations list being executed;
	// its directory is passed to the Resolver. BuiltinResolver does not
	// load files from it and uses it only in its error message.
	MigrationsFile string

	// CreateCommits makes a git commit after each migration.
	CreateCommits bool

	// CommitPrefix prefixes each commit message.
	CommitPrefix string

	// SkipInstall suppresses the post-run package-manager install.
	SkipInstall bool
}

// MigrationResult records the outcome of one migration.
type MigrationResult struct {
	Package     string
	Name        string
	MadeChanges bool
	CommitSHA   string
	Duration    time.Duration
}

// Result is the outcome of a whole run.
type Result struct {
	Migrations []MigrationResult
	InstallRan bool
}

// Runner executes migrations in list order.
type Runner struct {
	fs        fsops.FS
	git       gitx.Git
	clk       clock.Clock
	hasher    hash.Hasher
	resolver  Resolver
	adapter   Adapter
	installer Installer
	out       io.Writer
}

// New creates a Runner. adapter and installer may be nil; out defaults
// to stdout.
func New(fs fsops.FS, git gitx.Git, clk clock.Clock, hasher hash.Hasher, resolver Resolver, adapter Adapter, installer Installer, out io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		fs:        fs,
		git:       git,
		clk:       clk,
		hasher:    hasher,
		resolver:  resolver,
		adapter:   adapter,
		installer: installer,
		out:       out,
	}
}

// Run executes the migrations in order. The first failing migration
// terminates the run; commit failures are logged and skipped.
func (r *Runner) Run(ctx context.Context, migrations []planner.MigrationEntry, opts Options) (*Result, error) {
	before := r.dependencySnapshot(opts.WorkspaceRoot)

	// Load requirements up front so a missing adapter fails before any
	// migration has touched the workspace.
	for _, m := range migrations {
		if m.CLI != "" && m.CLI != NativeCLI && r.adapter == nil {
			return nil, fmt.Errorf("migration %s requires the %q cli adapter, which is not available", m.Name, m.CLI)
		}
	}

	migrationsDir := filepath.Dir(opts.MigrationsFile)
	installed := workspace.NewInstalledResolver(r.fs, opts.WorkspaceRoot)
	result := &Result{}
	for _, m := range migrations {
		if !requirementsMet(m.Requires, installed) {
			_, _ = dimColor.Fprintf(r.out, "  %s: requirements not met, skipped\n", m.Name)
			result.Migrations = append(result.Migrations, MigrationResult{Package: m.Package, Name: m.Name})
			continue
		}
		start := r.clk.Now()
		madeChanges, logs, err := r.runOne(ctx, m, migrationsDir, opts)
		if err != nil {
			_, _ = failureColor.Fprintf(r.out, "✗ Failed to run %s from %s\n", m.Name, m.Package)
			return nil, fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		duration := r.clk.Now().Sub(start)

		entry := MigrationResult{
			Package:     m.Package,
			Name:        m.Name,
			MadeChanges: madeChanges,
			Duration:    duration,
		}
		if !madeChanges {
			// No progress header for no-op migrations.
			_, _ = dimColor.Fprintf(r.out, "  %s: no changes\n", m.Name)
			result.Migrations = append(result.Migrations, entry)
			continue
		}

		_, _ = headerColor.Fprintf(r.out, "▸ %s\n", m.Name)
		if m.Description != "" {
			fmt.Fprintf(r.out, "  %s\n", m.Description)
		}
		for _, line := range logs {
			fmt.Fprintf(r.out, "  %s\n", line)
		}
		_, _ = successColor.Fprintf(r.out, "✓ %s (%s)\n", m.Name, duration.Round(time.Millisecond))

		if opts.CreateCommits {
			message := opts.CommitPrefix + m.Name
			sha, err := r.git.CommitAll(opts.WorkspaceRoot, message)
			if err != nil {
				_, _ = failureColor.Fprintf(r.out, "✗ Failed to commit %s: %v\n", m.Name, err)
			} else {
				entry.CommitSHA = sha
			}
		}
		result.Migrations = append(result.Migrations, entry)
	}

	after := r.dependencySnapshot(opts.WorkspaceRoot)
	if before != after && !opts.SkipInstall && r.installer != nil {
		if err := r.installer.Install(ctx, opts.WorkspaceRoot); err != nil {
			return nil, fmt.Errorf("failed to install updated dependencies: %w", err)
		}
		result.InstallRan = true
	}
	return result, nil
}

func (r *Runner) runOne(ctx context.Context, m planner.MigrationEntry, migrationsDir string, opts Options) (bool, []string, error) {
	if m.CLI != "" && m.CLI != NativeCLI {
		res, err := r.adapter.Run(ctx, m, opts.WorkspaceRoot)
		if err != nil {
			return false, nil, err
		}
		return res.MadeChanges, res.LoggingQueue, nil
	}

	impl, err := r.resolver.Resolve(m, migrationsDir)
	if err != nil {
		return false, nil, err
	}

	tree := NewFsTree(opts.WorkspaceRoot, r.fs)
	if err := impl(tree, map[string]interface{}{}); err != nil {
		return false, nil, err
	}
	changes := tree.ListChanges()
	if len(changes) == 0 {
		return false, nil, nil
	}
	if err := tree.FlushChanges(); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// requirementsMet checks a migration's requires predicate against the
// packages installed in the workspace.
func requirementsMet(requires map[string]string, installed *workspace.InstalledResolver) bool {
	for dep, constraint := range requires {
		v := installed.Resolve(dep, nil)
		if v == "" || !semverx.Satisfies(v, constraint) {
			return false
		}
	}
	return true
}

// dependencySnapshot hashes the manifest's dependency sections; "" when
// the manifest is unreadable.
func (r *Runner) dependencySnapshot(root string) string {
	pkg, err := workspace.ReadPackageJSON(r.fs, root)
	if err != nil {
		return ""
	}
	return r.hasher.HashBytes(pkg.DependencySnapshot())
}
