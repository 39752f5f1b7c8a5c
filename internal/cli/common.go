package cli

import (
	"os"

	"github.com/danieljhkim/monomigrate/internal/clock"
	"github.com/danieljhkim/monomigrate/internal/engine"
	"github.com/danieljhkim/monomigrate/internal/fsops"
	"github.com/danieljhkim/monomigrate/internal/gitx"
	"github.com/danieljhkim/monomigrate/internal/hash"
	"github.com/danieljhkim/monomigrate/internal/prompt"
	"github.com/danieljhkim/monomigrate/internal/registry"
	"github.com/danieljhkim/monomigrate/internal/runner"
)

// newEngine creates an engine with real implementations of all
// dependencies.
func newEngine() *engine.Engine {
	fs := fsops.NewRealFS()
	git := gitx.NewRealGit()
	clk := &clock.RealClock{}
	hasher := hash.NewSHA256Hasher()
	client := registry.NewHTTPClient()
	resolver := runner.NewBuiltinResolver()
	installer := runner.NewPackageManagerInstaller()
	prompter := prompt.NewStdinPrompter()

	return engine.New(fs, git, clk, hasher, client, resolver, installer, prompter, os.Stdout)
}
