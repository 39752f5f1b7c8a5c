package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/monomigrate/internal/planner"
	"github.com/danieljhkim/monomigrate/internal/runner"
)

// Run executes a previously recorded migrations file in order.
func (e *Engine) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	file := req.File
	if file == "" {
		file = MigrationsFileName
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(req.CWD, file)
	}

	exists, err := e.fs.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		if req.IfExists {
			return &RunResult{Ran: false}, nil
		}
		return nil, fmt.Errorf("migrations file %s does not exist", file)
	}

	data, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var migrationsFile planner.MigrationsFile
	if err := json.Unmarshal(data, &migrationsFile); err != nil {
		return nil, fmt.Errorf("invalid migrations file %s: %w", file, err)
	}

	r := runner.New(e.fs, e.git, e.clk, e.hasher, e.resolver, e.adapter, e.installer, e.out)
	result, err := r.Run(ctx, migrationsFile.Migrations, runner.Options{
		WorkspaceRoot:  req.CWD,
		MigrationsFile: path,
		CreateCommits:  req.CreateCommits,
		CommitPrefix:   req.CommitPrefix,
		SkipInstall:    req.SkipInstall,
	})
	if err != nil {
		return nil, err
	}
	return &RunResult{Ran: true, Run: result}, nil
}
