// Package planner computes, from a single package@version request, the
// transitive set of package upgrades a workspace needs and the ordered
// list of migration scripts that bring source files in step with them.
//
// Planning runs in two phases. Phase 1 walks migration documents
// recursively, expanding package groups and propagating conditional
// packageJsonUpdates into a monotone plan map. Phase 2 re-reads the
// documents at their planned versions and collects every generator whose
// version window admits it. A generator's requires predicate does not gate
// collection: it is copied into the entry for the runner, and is consulted
// in this phase only by the excludeAppliedMigrations skip detection.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danieljhkim/monomigrate/internal/semverx"
)

const workspacePackage = "@nrwl/workspace"

// Package groups were not published in documents before 14.0.0-beta.0;
// the sibling set for older workspaces is fixed.
var legacyWorkspaceGroup = PackageGroup{
	{Package: "@nrwl/workspace", Version: "*"},
	{Package: "@nrwl/angular", Version: "*"},
	{Package: "@nrwl/cypress", Version: "*"},
	{Package: "@nrwl/devkit", Version: "*"},
	{Package: "@nrwl/eslint-plugin-nx", Version: "*"},
	{Package: "@nrwl/express", Version: "*"},
	{Package: "@nrwl/jest", Version: "*"},
	{Package: "@nrwl/linter", Version: "*"},
	{Package: "@nrwl/nest", Version: "*"},
	{Package: "@nrwl/next", Version: "*"},
	{Package: "@nrwl/node", Version: "*"},
	{Package: "@nrwl/nx-cloud", Version: semverx.TagLatest},
	{Package: "@nrwl/nx-plugin", Version: "*"},
	{Package: "@nrwl/react", Version: "*"},
	{Package: "@nrwl/storybook", Version: "*"},
	{Package: "@nrwl/web", Version: "*"},
	{Package: "@nrwl/js", Version: "*"},
	{Package: "@nrwl/cli", Version: "*"},
	{Package: "@nrwl/tao", Version: "*"},
}

// Options configures a Migrator.
type Options struct {
	// From overrides what the planner considers installed.
	From map[string]string

	// To overrides what version the planner aims at for listed packages.
	To map[string]string

	// Interactive enables x-prompt gating through Prompter.
	Interactive bool

	// ExcludeAppliedMigrations enables the phase-2 skip-detection gate.
	ExcludeAppliedMigrations bool

	// Prompter answers x-prompts; defaults to accepting everything.
	Prompter Prompter
}

// Migrator is the core graph resolver. It is constructed once per
// invocation and discarded after Migrate returns.
type Migrator struct {
	fetcher   Fetcher
	manifest  Manifest
	installed InstalledVersions

	to             map[string]string
	interactive    bool
	excludeApplied bool
	prompter       Prompter

	mu                 sync.Mutex
	packageUpdates     map[string]PackageUpdate
	updateOrder        []string
	collectedVersions  map[string]string
	installedOverrides map[string]string
}

// New creates a Migrator over the given fetcher, workspace manifest, and
// installed-version resolver.
func New(fetcher Fetcher, manifest Manifest, installed InstalledVersions, opts Options) *Migrator {
	overrides := make(map[string]string, len(opts.From))
	for k, v := range opts.From {
		overrides[k] = v
	}
	to := make(map[string]string, len(opts.To))
	for k, v := range opts.To {
		to[k] = v
	}
	prompter := opts.Prompter
	if prompter == nil {
		prompter = acceptAll{}
	}
	return &Migrator{
		fetcher:            fetcher,
		manifest:           manifest,
		installed:          installed,
		to:                 to,
		interactive:        opts.Interactive,
		excludeApplied:     opts.ExcludeAppliedMigrations,
		prompter:           prompter,
		packageUpdates:     make(map[string]PackageUpdate),
		collectedVersions:  make(map[string]string),
		installedOverrides: overrides,
	}
}

type acceptAll struct{}

func (acceptAll) Confirm(string) (bool, error) { return true, nil }

// Migrate computes the plan for raising targetPackage to targetVersion.
func (m *Migrator) Migrate(ctx context.Context, targetPackage, targetVersion string) (*MigrationPlan, error) {
	if err := m.buildPackageJsonUpdates(ctx, targetPackage, PackageUpdate{Version: targetVersion}); err != nil {
		return nil, err
	}
	migrations, err := m.collectMigrations(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	updates := make(map[string]PackageUpdate, len(m.packageUpdates))
	for k, v := range m.packageUpdates {
		updates[k] = v
	}
	order := append([]string(nil), m.updateOrder...)
	return &MigrationPlan{
		PackageUpdates: updates,
		PackageOrder:   order,
		Migrations:     migrations,
	}, nil
}

// orderedUpdates is a name-keyed set of PackageUpdate entries that keeps
// first-insertion order; later writes replace the value in place.
type orderedUpdates struct {
	names   []string
	updates map[string]PackageUpdate
}

func newOrderedUpdates() *orderedUpdates {
	return &orderedUpdates{updates: make(map[string]PackageUpdate)}
}

func (o *orderedUpdates) Set(name string, update PackageUpdate) {
	if _, exists := o.updates[name]; !exists {
		o.names = append(o.names, name)
	}
	o.updates[name] = update
}

func (o *orderedUpdates) Get(name string) (PackageUpdate, bool) {
	u, ok := o.updates[name]
	return u, ok
}

func (o *orderedUpdates) Names() []string { return o.names }

func (o *orderedUpdates) Len() int { return len(o.names) }

// filteredUpdate is a packageJsonUpdates entry that survived filtering,
// with its retained packages rewritten to plan entries.
type filteredUpdate struct {
	Label    string
	Version  string
	XPrompt  string
	Requires map[string]string
	Packages *orderedUpdates
}

// deferredPackage carries updates whose applicability could not be
// decided eagerly: they prompt under interactive mode or carry requires.
type deferredPackage struct {
	pkg     string
	updates []filteredUpdate
}

// buildPackageJsonUpdates is the phase-1 entry point for one package.
func (m *Migrator) buildPackageJsonUpdates(ctx context.Context, pkg string, target PackageUpdate) error {
	toCheck, err := m.populatePackageJsonUpdatesAndGetPackagesToCheck(ctx, pkg, target)
	if err != nil {
		return err
	}

	for _, deferred := range toCheck {
		admitted := newOrderedUpdates()
		for _, u := range deferred.updates {
			// Earlier admissions are visible to later requires checks.
			if len(u.Requires) > 0 && !m.requiresSatisfied(u.Requires, admitted) {
				continue
			}
			if m.interactive && u.XPrompt != "" {
				ok, err := m.prompter.Confirm(u.XPrompt)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			for _, name := range u.Packages.Names() {
				update, _ := u.Packages.Get(name)
				admitted.Set(name, update)
			}
		}

		for _, name := range admitted.Names() {
			update, _ := admitted.Get(name)
			if err := m.buildPackageJsonUpdates(ctx, name, update); err != nil {
				return err
			}
		}
	}
	return nil
}

// populatePackageJsonUpdatesAndGetPackagesToCheck fetches one package's
// migration document, records its plan entry, and recurses into the
// packages its updates bring in. Updates that prompt or carry requires
// are returned for deferred evaluation instead of being followed.
func (m *Migrator) populatePackageJsonUpdatesAndGetPackagesToCheck(ctx context.Context, pkg string, target PackageUpdate) ([]deferredPackage, error) {
	targetVersion := target.Version
	if to, ok := m.to[pkg]; ok {
		targetVersion = to
	}

	// A package not installed brings no transitive children.
	if m.getInstalledVersion(pkg) == "" {
		m.addPackageUpdate(pkg, PackageUpdate{Version: target.Version, AddToPackageJson: target.AddToPackageJson})
		return nil, nil
	}

	doc, err := m.fetcher.Fetch(ctx, pkg, targetVersion)
	if err != nil {
		if strings.Contains(err.Error(), "No matching version") {
			return nil, fmt.Errorf("%w\nRun migrate with --to=\"package@version\"", err)
		}
		return nil, err
	}
	if doc.Version != "" {
		targetVersion = doc.Version
	}

	m.mu.Lock()
	if collected, ok := m.collectedVersions[pkg]; ok && semverx.Gte(collected, targetVersion) {
		m.mu.Unlock()
		return nil, nil
	}
	m.collectedVersions[pkg] = targetVersion
	m.mu.Unlock()

	m.addPackageUpdate(pkg, PackageUpdate{Version: targetVersion, AddToPackageJson: target.AddToPackageJson})

	groupOrder := m.expandPackageGroup(doc, pkg, targetVersion)
	filtered := m.filterPackageJsonUpdates(doc.PackageJsonUpdates, pkg, targetVersion)

	for _, u := range filtered {
		if (m.interactive && u.XPrompt != "") || len(u.Requires) > 0 {
			return []deferredPackage{{pkg: pkg, updates: filtered}}, nil
		}
	}

	// Fold all packages maps together; last write wins.
	merged := newOrderedUpdates()
	for _, u := range filtered {
		for _, name := range u.Packages.Names() {
			update, _ := u.Packages.Get(name)
			merged.Set(name, update)
		}
	}

	var flattened []deferredPackage
	for _, name := range merged.Names() {
		update, _ := merged.Get(name)
		children, err := m.populatePackageJsonUpdatesAndGetPackagesToCheck(ctx, name, update)
		if err != nil {
			return nil, err
		}
		flattened = append(flattened, children...)
	}
	sortByPackageGroupOrder(flattened, groupOrder)
	return flattened, nil
}

// sortByPackageGroupOrder reorders deferred packages so downstream
// visits follow group-declared precedence. Packages outside the group
// sort first, keeping their relative order.
func sortByPackageGroupOrder(items []deferredPackage, order []string) {
	if len(order) == 0 || len(items) < 2 {
		return
	}
	index := func(pkg string) int {
		for i, p := range order {
			if p == pkg {
				return i
			}
		}
		return -1
	}
	sort.SliceStable(items, func(i, j int) bool {
		return index(items[i].pkg) < index(items[j].pkg)
	})
}

// addPackageUpdate records a plan entry; a stored record wins only if
// its version is strictly greater.
func (m *Migrator) addPackageUpdate(pkg string, update PackageUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.packageUpdates[pkg]
	if ok && semverx.Gt(existing.Version, update.Version) {
		return
	}
	if !ok {
		m.updateOrder = append(m.updateOrder, pkg)
	}
	m.packageUpdates[pkg] = update
}

// expandPackageGroup injects the document's package group as a synthetic
// packageJsonUpdates entry and returns the group's declared order.
func (m *Migrator) expandPackageGroup(doc *MigrationDocument, pkg, targetVersion string) []string {
	group := doc.PackageGroup
	if pkg == workspacePackage && semverx.Lt(targetVersion, "14.0.0-beta.0") {
		group = legacyWorkspaceGroup
	}
	if len(group) == 0 {
		return nil
	}

	m.mu.Lock()
	parentOverride, hasParentOverride := m.installedOverrides[pkg]
	m.mu.Unlock()

	packages := NewPackageRules()
	order := make([]string, 0, len(group))
	for _, entry := range group {
		order = append(order, entry.Package)
		version := entry.Version
		if version == "*" {
			version = targetVersion
			// A pinned parent pins its cadence siblings too.
			if hasParentOverride {
				m.mu.Lock()
				if _, ok := m.installedOverrides[entry.Package]; !ok {
					m.installedOverrides[entry.Package] = parentOverride
				}
				m.mu.Unlock()
			}
		}
		packages.Set(entry.Package, PackageUpdateRule{Version: version})
	}

	doc.PackageJsonUpdates = append(doc.PackageJsonUpdates, PackageJsonUpdate{
		Name:     targetVersion + "--PackageGroup",
		Version:  targetVersion,
		Packages: packages,
	})
	return order
}

// filterPackageJsonUpdates keeps the updates applicable to the move from
// the installed version to targetVersion and rewrites their retained
// packages to plan entries.
func (m *Migrator) filterPackageJsonUpdates(updates PackageJsonUpdates, pkg, targetVersion string) []filteredUpdate {
	installedVersion := m.getInstalledVersion(pkg)

	var out []filteredUpdate
	for _, u := range updates {
		if u.Packages.Len() == 0 {
			continue
		}
		if semverx.Lte(u.Version, installedVersion) {
			continue
		}
		if semverx.Gt(u.Version, targetVersion) {
			continue
		}

		retained := newOrderedUpdates()
		for _, child := range u.Packages.Names() {
			rule, _ := u.Packages.Get(child)
			if rule.IfPackageInstalled != "" && m.getInstalledVersion(rule.IfPackageInstalled) == "" {
				continue
			}
			if !rule.AlwaysAddToPackageJson && rule.AddToPackageJson == "" &&
				!m.manifest.HasDependency(child) && !m.manifest.HasDevDependency(child) {
				continue
			}
			m.mu.Lock()
			collected, hasCollected := m.collectedVersions[child]
			m.mu.Unlock()
			if hasCollected && !semverx.Gt(rule.Version, collected) {
				continue
			}

			section := rule.AddToPackageJson
			if rule.AlwaysAddToPackageJson {
				section = SectionDependencies
			}
			retained.Set(child, PackageUpdate{Version: rule.Version, AddToPackageJson: section})
		}
		if retained.Len() == 0 {
			continue
		}
		out = append(out, filteredUpdate{
			Label:    u.Name,
			Version:  u.Version,
			XPrompt:  u.XPrompt,
			Requires: u.Requires,
			Packages: retained,
		})
	}
	return out
}

// collectMigrations is phase 2: derive the ordered migrations list from
// the finished package-update plan.
func (m *Migrator) collectMigrations(ctx context.Context) ([]MigrationEntry, error) {
	m.mu.Lock()
	order := append([]string(nil), m.updateOrder...)
	updates := make(map[string]PackageUpdate, len(m.packageUpdates))
	for k, v := range m.packageUpdates {
		updates[k] = v
	}
	m.mu.Unlock()

	var out []MigrationEntry
	for _, pkg := range order {
		update := updates[pkg]
		installedVersion := m.getInstalledVersion(pkg)
		if installedVersion == "" {
			continue
		}

		doc, err := m.fetcher.Fetch(ctx, pkg, update.Version)
		if err != nil {
			return nil, err
		}
		for _, g := range doc.Generators {
			if g.Version == "" {
				continue
			}
			if !semverx.Lte(g.Version, update.Version) {
				continue
			}
			if m.excludeApplied {
				// Re-run only what was previously skipped or is newly in
				// the upgrade window.
				if !m.previouslySkipped(g.Requires) && !semverx.Gt(g.Version, installedVersion) {
					continue
				}
			} else if !semverx.Gt(g.Version, installedVersion) {
				continue
			}
			// The requires predicate travels with the entry; the runner
			// evaluates it against the workspace state at execution time.
			out = append(out, MigrationEntry{
				Package:        pkg,
				Name:           g.Name,
				Version:        g.Version,
				Description:    g.Description,
				CLI:            g.CLI,
				Implementation: g.Implementation,
				Factory:        g.Factory,
				Requires:       g.Requires,
			})
		}
	}
	return out, nil
}

// previouslySkipped reports whether a migration with these requires
// would have been skipped at the workspace's current state.
func (m *Migrator) previouslySkipped(requires map[string]string) bool {
	if len(requires) == 0 {
		return false
	}
	for dep, constraint := range requires {
		v := m.getInstalledVersion(dep)
		if v == "" || !semverx.Satisfies(v, constraint) {
			return true
		}
	}
	return false
}

// requiresSatisfied checks a requires predicate against the peer set
// being built (if any), then the plan, then installed versions.
func (m *Migrator) requiresSatisfied(requires map[string]string, peers *orderedUpdates) bool {
	for dep, constraint := range requires {
		version := ""
		if peers != nil {
			if u, ok := peers.Get(dep); ok {
				version = u.Version
			}
		}
		if version == "" {
			m.mu.Lock()
			if u, ok := m.packageUpdates[dep]; ok {
				version = u.Version
			}
			m.mu.Unlock()
		}
		if version == "" {
			version = m.getInstalledVersion(dep)
		}
		if version == "" || !semverx.Satisfies(version, constraint) {
			return false
		}
	}
	return true
}

// getInstalledVersion resolves through the caller-supplied overrides,
// including any pins propagated from package-group parents.
func (m *Migrator) getInstalledVersion(name string) string {
	m.mu.Lock()
	overrides := make(map[string]string, len(m.installedOverrides))
	for k, v := range m.installedOverrides {
		overrides[k] = v
	}
	m.mu.Unlock()
	return m.installed.Resolve(name, overrides)
}
