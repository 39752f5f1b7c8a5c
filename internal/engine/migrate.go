package engine

import (
	"context"
	"fmt"

	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/registry"
	"github.com/danieljhkim/monomigrate/internal/workspace"
)

// Migrate computes the upgrade plan for the request and, unless DryRun
// is set, persists it: package.json versions, nx.json installation pins,
// and the ordered migrations.json.
func (e *Engine) Migrate(ctx context.Context, req *MigrateRequest) (*MigrateResult, error) {
	manifest, err := workspace.ReadPackageJSON(e.fs, req.CWD)
	if err != nil {
		if workspace.IsNotExist(err) {
			return nil, fmt.Errorf("no package.json found in %s", req.CWD)
		}
		return nil, err
	}

	resolver := workspace.NewInstalledResolver(e.fs, req.CWD)
	fetcher := registry.NewFetcher(e.client, e.fs)
	migrator := planner.New(fetcher, manifest, resolver, planner.Options{
		From:                     req.From,
		To:                       req.To,
		Interactive:              req.Interactive,
		ExcludeAppliedMigrations: req.ExcludeAppliedMigrations,
		Prompter:                 e.prompter,
	})

	plan, err := migrator.Migrate(ctx, req.TargetPackage, req.TargetVersion)
	if err != nil {
		return nil, err
	}

	migrations := e.withSyntheticPrepend(plan, resolver, req.From)
	result := &MigrateResult{
		PackageUpdates: plan.PackageUpdates,
		PackageOrder:   plan.PackageOrder,
		Migrations:     migrations,
	}
	if req.DryRun {
		return result, nil
	}

	if err := writeManifestUpdates(e.fs, req.CWD, manifest, plan); err != nil {
		return nil, err
	}
	if err := writeInstallationUpdates(e.fs, req.CWD, plan); err != nil {
		return nil, err
	}
	wrote, err := writeMigrationsFile(e.fs, req.CWD, migrations)
	if err != nil {
		return nil, err
	}
	result.WroteMigrations = wrote
	return result, nil
}

// withSyntheticPrepend prepends the built-in configuration-split
// migration when the plan crosses the split threshold.
func (e *Engine) withSyntheticPrepend(plan *planner.MigrationPlan, resolver *workspace.InstalledResolver, overrides map[string]string) []planner.MigrationEntry {
	migrations := plan.Migrations

	update, ok := plan.UpdateFor(workspacePackage)
	if !ok {
		return migrations
	}
	installed := resolver.Resolve(workspacePackage, overrides)
	if installed == "" {
		return migrations
	}
	if !crossesSplitThreshold(installed, update.Version) {
		return migrations
	}

	out := make([]planner.MigrationEntry, 0, len(migrations)+1)
	out = append(out, splitConfigurationMigration)
	out = append(out, migrations...)
	return out
}
