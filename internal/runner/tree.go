// Package runner executes a plan's migrations in order against the
// workspace.
//
// Each native migration runs against a virtual filesystem tree; its
// recorded changes are flushed to disk only after the implementation
// returns. Migrations for an external CLI are delegated to an adapter.
package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danieljhkim/monomigrate/internal/fsops"
)

// ChangeType classifies a recorded tree change.
type ChangeType string

// Tree change types.
const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// FileChange is one recorded mutation of the virtual tree.
type FileChange struct {
	// Path is relative to the tree root.
	Path string

	// Type classifies the change.
	Type ChangeType

	// Content is the new file content (nil for deletes).
	Content []byte
}

// Tree is the virtual filesystem a migration implementation mutates.
// Reads see pending writes; nothing reaches disk until FlushChanges.
type Tree interface {
	// Root returns the workspace root the tree is bound to.
	Root() string

	// Read returns the content at path, including pending writes.
	Read(path string) ([]byte, error)

	// Exists reports whether path exists in the tree.
	Exists(path string) bool

	// Write records a create or update at path.
	Write(path string, content []byte) error

	// Delete records a removal of path.
	Delete(path string) error

	// ListChanges returns the recorded changes in order.
	ListChanges() []FileChange

	// FlushChanges applies the recorded changes to disk.
	FlushChanges() error
}

// FsTree implements Tree over an fsops.FS.
type FsTree struct {
	root    string
	fs      fsops.FS
	order   []string
	changes map[string]FileChange
}

// NewFsTree creates a tree rooted at the workspace directory.
func NewFsTree(root string, fs fsops.FS) *FsTree {
	return &FsTree{
		root:    root,
		fs:      fs,
		changes: make(map[string]FileChange),
	}
}

// Root returns the workspace root.
func (t *FsTree) Root() string {
	return t.root
}

func (t *FsTree) abs(path string) string {
	return filepath.Join(t.root, path)
}

// Read returns the content at path, preferring pending writes.
func (t *FsTree) Read(path string) ([]byte, error) {
	path = filepath.Clean(path)
	if change, ok := t.changes[path]; ok {
		if change.Type == ChangeDelete {
			return nil, fmt.Errorf("%s was deleted: %w", path, os.ErrNotExist)
		}
		return change.Content, nil
	}
	return t.fs.ReadFile(t.abs(path))
}

// Exists reports whether path exists, accounting for pending changes.
func (t *FsTree) Exists(path string) bool {
	path = filepath.Clean(path)
	if change, ok := t.changes[path]; ok {
		return change.Type != ChangeDelete
	}
	exists, err := t.fs.Exists(t.abs(path))
	return err == nil && exists
}

func (t *FsTree) record(path string, change FileChange) {
	if _, exists := t.changes[path]; !exists {
		t.order = append(t.order, path)
	}
	t.changes[path] = change
}

// Write records a create or update at path.
func (t *FsTree) Write(path string, content []byte) error {
	path = filepath.Clean(path)
	changeType := ChangeCreate
	if t.Exists(path) {
		changeType = ChangeUpdate
	}
	// Writing identical content is not a change.
	if changeType == ChangeUpdate {
		if existing, err := t.Read(path); err == nil && string(existing) == string(content) {
			return nil
		}
	}
	t.record(path, FileChange{Path: path, Type: changeType, Content: content})
	return nil
}

// Delete records a removal of path.
func (t *FsTree) Delete(path string) error {
	path = filepath.Clean(path)
	if !t.Exists(path) {
		return fmt.Errorf("cannot delete %s: %w", path, os.ErrNotExist)
	}
	t.record(path, FileChange{Path: path, Type: ChangeDelete})
	return nil
}

// ListChanges returns the recorded changes in order.
func (t *FsTree) ListChanges() []FileChange {
	out := make([]FileChange, 0, len(t.order))
	for _, path := range t.order {
		out = append(out, t.changes[path])
	}
	return out
}

// FlushChanges applies the recorded changes to disk.
func (t *FsTree) FlushChanges() error {
	for _, change := range t.ListChanges() {
		switch change.Type {
		case ChangeCreate, ChangeUpdate:
			if err := t.fs.AtomicWrite(t.abs(change.Path), change.Content, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", change.Path, err)
			}
		case ChangeDelete:
			if err := t.fs.Remove(t.abs(change.Path)); err != nil {
				return fmt.Errorf("failed to delete %s: %w", change.Path, err)
			}
		}
	}
	return nil
}
