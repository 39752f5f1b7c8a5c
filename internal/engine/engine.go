// Package engine orchestrates the migrate command: planning against the
// registry, persisting the plan to the workspace, and executing recorded
// migrations.
package engine

import (
	"io"
	"os"

	"github.com/danieljhkim/monomigrate/internal/clock"
	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/gitx"
	"github.com/danieljhkim/monomigrate/internal/hash"
	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/registry"
	"github.com/danieljhkim/monomigrate/internal/runner"
)

// Engine wires the planner, fetcher, writer, and runner together.
type Engine struct {
	fs        fsops.FS
	git       gitx.Git
	clk       clock.Clock
	hasher    hash.Hasher
	client    registry.Client
	resolver  runner.Resolver
	installer runner.Installer
	prompter  planner.Prompter
	adapter   runner.Adapter
	out       io.Writer
}

// New creates an engine. prompter and installer may be nil; out defaults
// to stdout.
func New(fs fsops.FS, git gitx.Git, clk clock.Clock, hasher hash.Hasher, client registry.Client, resolver runner.Resolver, installer runner.Installer, prompter planner.Prompter, out io.Writer) *Engine {
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		fs:        fs,
		git:       git,
		clk:       clk,
		hasher:    hasher,
		client:    client,
		resolver:  resolver,
		installer: installer,
		prompter:  prompter,
		out:       out,
	}
}

// SetAdapter installs the external-CLI migration adapter.
func (e *Engine) SetAdapter(a runner.Adapter) {
	e.adapter = a
}
