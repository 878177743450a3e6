// Package workspace owns the per-task directory tree.
package workspace

import (
	"path/filepath"

	"chiko/internal/judge/sandbox/identity"
)

const (
	workDirName = "work"
	dataDirName = "data"
)

// Workspace describes the filesystem layout for one execution attempt.
// WorkDir is mounted into the sandbox; DataDir never is.
type Workspace struct {
	ID      identity.TaskID
	Root    string
	WorkDir string
	DataDir string
}

// WorkPath returns the host path of name inside the mounted subtree.
func (w *Workspace) WorkPath(name string) string {
	return filepath.Join(w.WorkDir, name)
}

// DataPath returns the host path of name inside the host-only subtree.
func (w *Workspace) DataPath(name string) string {
	return filepath.Join(w.DataDir, name)
}
