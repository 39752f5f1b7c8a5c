package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/monomigrate/internal/engine"
	"github.com/danieljhkim/monomigrate/internal/workspace"
)

// defaultCommitPrefix prefixes per-migration commit messages unless
// overridden with --commit-prefix.
const defaultCommitPrefix = "chore: [nx migration] "

var (
	migrateFrom           string
	migrateTo             string
	migrateInteractive    bool
	migrateExcludeApplied bool
	migrateRunMigrations  string
	migrateIfExists       bool
	migrateCreateCommits  bool
	migrateCommitPrefix   string
	migrateDryRun         bool
	migrateVerbose        bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [package@version | version | latest | next]",
	Short: "Plan and apply workspace package upgrades",
	Long: `Plan a workspace upgrade, or run previously recorded migrations.

Planning mode resolves the transitive set of package upgrades implied by
the target, rewrites package.json (and the nx.json installation block),
and records the ordered migration scripts in migrations.json.

Run mode (--run-migrations) executes a recorded migrations file in order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateVerbose {
			_ = os.Setenv("NX_VERBOSE_LOGGING", "true")
		}

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		if cmd.Flags().Changed("run-migrations") {
			return runRecordedMigrations(cmd.Context(), cwd)
		}

		if len(args) == 0 {
			return fmt.Errorf("specify a target, e.g. migrate nx@latest")
		}
		return planMigration(cmd.Context(), cwd, args[0])
	},
}

func planMigration(ctx context.Context, cwd, target string) error {
	pkg, version, err := engine.ParseTarget(target)
	if err != nil {
		return err
	}
	Debugf("planning %s@%s", pkg, version)

	from, err := workspace.ParseVersionOverrides("from", migrateFrom)
	if err != nil {
		return err
	}
	to, err := workspace.ParseVersionOverrides("to", migrateTo)
	if err != nil {
		return err
	}

	eng := newEngine()
	result, err := eng.Migrate(ctx, &engine.MigrateRequest{
		CWD:                      cwd,
		TargetPackage:            pkg,
		TargetVersion:            version,
		From:                     from,
		To:                       to,
		Interactive:              migrateInteractive,
		ExcludeAppliedMigrations: migrateExcludeApplied,
		DryRun:                   migrateDryRun,
	})
	if err != nil {
		return err
	}

	PrintSection("Package updates")
	if len(result.PackageOrder) == 0 {
		PrintEmptyState("Nothing to update.")
	}
	for _, name := range result.PackageOrder {
		PrintLabelValue(name, result.PackageUpdates[name].Version)
	}

	PrintSection("Migrations")
	if len(result.Migrations) == 0 {
		PrintEmptyState("No migrations necessary.")
	}
	for _, m := range result.Migrations {
		PrintLabelValue(m.Name, m.Package+"@"+m.Version)
	}

	switch {
	case migrateDryRun:
		PrintWarning("Dry run: nothing was written.")
	case result.WroteMigrations:
		PrintSuccess(fmt.Sprintf("Wrote %s; run 'monomigrate migrate --run-migrations' to execute.", engine.MigrationsFileName))
	default:
		PrintSuccess("Updated package.json; no migrations to run.")
	}
	return nil
}

func runRecordedMigrations(ctx context.Context, cwd string) error {
	eng := newEngine()
	result, err := eng.Run(ctx, &engine.RunRequest{
		CWD:           cwd,
		File:          migrateRunMigrations,
		IfExists:      migrateIfExists,
		CreateCommits: migrateCreateCommits,
		CommitPrefix:  migrateCommitPrefix,
		SkipInstall:   os.Getenv("NX_MIGRATE_SKIP_INSTALL") != "",
	})
	if err != nil {
		PrintError(fmt.Sprintf("Migration run failed: %v", err))
		return err
	}
	if !result.Ran {
		PrintEmptyState("No migrations file found; nothing to do.")
		return nil
	}

	ran, skipped := 0, 0
	for _, m := range result.Run.Migrations {
		if m.MadeChanges {
			ran++
		} else {
			skipped++
		}
	}
	PrintSuccess(fmt.Sprintf("Ran %d migrations (%d without changes).", ran, skipped))
	if result.Run.InstallRan {
		PrintInfo("Dependencies changed; package manager install completed.")
	}
	return nil
}

func init() {
	flags := migrateCmd.Flags()
	flags.StringVar(&migrateFrom, "from", "", `Override the installed versions, e.g. --from="pkg@1.0.0,other@2.0.0"`)
	flags.StringVar(&migrateTo, "to", "", `Override the target versions, e.g. --to="pkg@3.0.0"`)
	flags.BoolVar(&migrateInteractive, "interactive", false, "Prompt before applying optional updates")
	flags.BoolVar(&migrateExcludeApplied, "exclude-applied-migrations", false, "Skip migrations that already ran at the current state")
	flags.StringVar(&migrateRunMigrations, "run-migrations", "", "Run a recorded migrations file instead of planning")
	flags.Lookup("run-migrations").NoOptDefVal = engine.MigrationsFileName
	flags.BoolVar(&migrateIfExists, "if-exists", false, "In run mode, silently no-op when the migrations file is absent")
	flags.BoolVar(&migrateCreateCommits, "create-commits", false, "Commit after each successful migration")
	flags.StringVar(&migrateCommitPrefix, "commit-prefix", defaultCommitPrefix, "Prefix for per-migration commit messages")
	flags.BoolVar(&migrateDryRun, "dry-run", false, "Compute and print the plan without writing")
	flags.BoolVar(&migrateVerbose, "verbose", false, "Enable verbose logging")
}
