package planner

import (
	"encoding/json"
	"fmt"

	"github.com/danieljhkim/monomigrate/internal/jsonutil"
)

// Dependency section names a package update may target.
const (
	SectionDependencies    = "dependencies"
	SectionDevDependencies = "devDependencies"
)

// DepSection is the tri-state addToPackageJson value: "" (do not add),
// "dependencies", or "devDependencies". Migration documents may encode
// it as a boolean or a section name.
type DepSection string

// UnmarshalJSON accepts false, true, or a section-name string.
func (s *DepSection) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "false", "null":
		*s = ""
		return nil
	case "true":
		*s = SectionDependencies
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("invalid addToPackageJson value %s", data)
	}
	switch str {
	case "", SectionDependencies, SectionDevDependencies:
		*s = DepSection(str)
		return nil
	}
	return fmt.Errorf("invalid addToPackageJson section %q", str)
}

// PackageUpdate is one entry of the accumulating plan: the version a
// package is being raised to, and whether it should be inserted into the
// manifest when not already present.
type PackageUpdate struct {
	Version          string     `json:"version"`
	AddToPackageJson DepSection `json:"addToPackageJson,omitempty"`
}

// PackageUpdateRule is one entry of a packageJsonUpdates "packages" map.
type PackageUpdateRule struct {
	Version                string     `json:"version"`
	IfPackageInstalled     string     `json:"ifPackageInstalled,omitempty"`
	AlwaysAddToPackageJson bool       `json:"alwaysAddToPackageJson,omitempty"`
	AddToPackageJson       DepSection `json:"addToPackageJson,omitempty"`
}

// PackageRules is a name-keyed set of PackageUpdateRule entries that
// keeps document order; evaluation order is observable through merge
// precedence and recursion order.
type PackageRules struct {
	names []string
	rules map[string]PackageUpdateRule
}

// NewPackageRules creates an empty rule set.
func NewPackageRules() *PackageRules {
	return &PackageRules{rules: make(map[string]PackageUpdateRule)}
}

// UnmarshalJSON decodes a JSON object of rules, keeping key order.
func (r *PackageRules) UnmarshalJSON(data []byte) error {
	obj := jsonutil.NewObject()
	if err := json.Unmarshal(data, obj); err != nil {
		return err
	}
	r.names = nil
	r.rules = make(map[string]PackageUpdateRule, obj.Len())
	for _, name := range obj.Keys() {
		raw, _ := obj.Get(name)
		var rule PackageUpdateRule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return fmt.Errorf("invalid packages entry %q: %w", name, err)
		}
		r.Set(name, rule)
	}
	return nil
}

// MarshalJSON encodes the rules in document order.
func (r *PackageRules) MarshalJSON() ([]byte, error) {
	obj := jsonutil.NewObject()
	for _, name := range r.names {
		raw, err := json.Marshal(r.rules[name])
		if err != nil {
			return nil, err
		}
		obj.Set(name, raw)
	}
	return json.Marshal(obj)
}

// Set stores a rule, appending the name if new.
func (r *PackageRules) Set(name string, rule PackageUpdateRule) {
	if r.rules == nil {
		r.rules = make(map[string]PackageUpdateRule)
	}
	if _, exists := r.rules[name]; !exists {
		r.names = append(r.names, name)
	}
	r.rules[name] = rule
}

// Get returns the rule for name.
func (r *PackageRules) Get(name string) (PackageUpdateRule, bool) {
	rule, ok := r.rules[name]
	return rule, ok
}

// Names returns the rule names in document order.
func (r *PackageRules) Names() []string {
	if r == nil {
		return nil
	}
	return r.names
}

// Len returns the number of rules.
func (r *PackageRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// PackageJsonUpdate is one conditional update rule from a migration
// document: when its version window and requires predicate admit it, the
// packages it names are bumped on peers.
type PackageJsonUpdate struct {
	Name     string            `json:"-"`
	Version  string            `json:"version"`
	XPrompt  string            `json:"x-prompt,omitempty"`
	Requires map[string]string `json:"requires,omitempty"`
	Packages *PackageRules     `json:"packages,omitempty"`
}

// PackageJsonUpdates is the document-ordered list of update rules keyed
// by their labels.
type PackageJsonUpdates []PackageJsonUpdate

// UnmarshalJSON decodes the label-keyed object, preserving label order.
func (u *PackageJsonUpdates) UnmarshalJSON(data []byte) error {
	obj := jsonutil.NewObject()
	if err := json.Unmarshal(data, obj); err != nil {
		return err
	}
	*u = nil
	for _, label := range obj.Keys() {
		raw, _ := obj.Get(label)
		var update PackageJsonUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			return fmt.Errorf("invalid packageJsonUpdates entry %q: %w", label, err)
		}
		update.Name = label
		*u = append(*u, update)
	}
	return nil
}

// Migration is one code-transformation script descriptor from a
// migration document's generators map.
type Migration struct {
	Name           string            `json:"-"`
	Version        string            `json:"version"`
	Description    string            `json:"description,omitempty"`
	CLI            string            `json:"cli,omitempty"`
	Implementation string            `json:"implementation,omitempty"`
	Factory        string            `json:"factory,omitempty"`
	Requires       map[string]string `json:"requires,omitempty"`
}

// Migrations is the document-ordered list of generators.
type Migrations []Migration

// UnmarshalJSON decodes the name-keyed object, preserving name order.
func (m *Migrations) UnmarshalJSON(data []byte) error {
	obj := jsonutil.NewObject()
	if err := json.Unmarshal(data, obj); err != nil {
		return err
	}
	*m = nil
	for _, name := range obj.Keys() {
		raw, _ := obj.Get(name)
		var migration Migration
		if err := json.Unmarshal(raw, &migration); err != nil {
			return fmt.Errorf("invalid generators entry %q: %w", name, err)
		}
		migration.Name = name
		*m = append(*m, migration)
	}
	return nil
}

// PackageGroupEntry names one sibling released on the shared cadence.
// Version "*" means "same as the document's version".
type PackageGroupEntry struct {
	Package string `json:"package"`
	Version string `json:"version"`
}

// PackageGroup is the ordered set of packages released together.
// Documents encode it as an array of strings, an array of entries, or a
// name-to-version object; all three decode to the entry list.
type PackageGroup []PackageGroupEntry

// UnmarshalJSON accepts the three wire shapes of a package group.
func (g *PackageGroup) UnmarshalJSON(data []byte) error {
	*g = nil
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for _, item := range items {
			if firstNonSpace(item) == '"' {
				var name string
				if err := json.Unmarshal(item, &name); err != nil {
					return err
				}
				*g = append(*g, PackageGroupEntry{Package: name, Version: "*"})
				continue
			}
			var entry PackageGroupEntry
			if err := json.Unmarshal(item, &entry); err != nil {
				return err
			}
			*g = append(*g, entry)
		}
		return nil
	case '{':
		obj := jsonutil.NewObject()
		if err := json.Unmarshal(data, obj); err != nil {
			return err
		}
		for _, name := range obj.Keys() {
			version, ok := obj.GetString(name)
			if !ok {
				return fmt.Errorf("invalid packageGroup version for %q", name)
			}
			*g = append(*g, PackageGroupEntry{Package: name, Version: version})
		}
		return nil
	}
	return fmt.Errorf("invalid packageGroup shape")
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// MigrationDocument is the upgrade metadata shipped with a versioned
// package: its release-group siblings, the peer updates it implies, and
// the transformation scripts it brings.
type MigrationDocument struct {
	Version            string             `json:"version,omitempty"`
	PackageGroup       PackageGroup       `json:"packageGroup,omitempty"`
	PackageJsonUpdates PackageJsonUpdates `json:"packageJsonUpdates,omitempty"`
	Generators         Migrations         `json:"generators,omitempty"`
	// Schematics is the legacy key for Generators; the fetcher rewrites
	// it before documents reach the planner.
	Schematics Migrations `json:"schematics,omitempty"`
}
