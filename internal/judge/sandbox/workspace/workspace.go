package workspace

import (
	"context"
	"os"
	"path/filepath"

	"chiko/internal/judge/sandbox/identity"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"

	"go.uber.org/zap"
)

// Create allocates <base>/<id>/{work,data}. The base directory is created if
// absent; an existing task directory is a collision and fails.
func Create(base string, id identity.TaskID) (*Workspace, error) {
	if base == "" {
		return nil, appErr.ValidationError("work_root", "required")
	}
	if id == "" {
		return nil, appErr.ValidationError("task_id", "required")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, appErr.WorkspaceError(err, base)
	}

	root := filepath.Join(base, string(id))
	if err := os.Mkdir(root, 0755); err != nil {
		return nil, appErr.WorkspaceError(err, root)
	}
	ws := &Workspace{
		ID:      id,
		Root:    root,
		WorkDir: filepath.Join(root, workDirName),
		DataDir: filepath.Join(root, dataDirName),
	}
	for _, dir := range []string{ws.WorkDir, ws.DataDir} {
		if err := os.Mkdir(dir, 0755); err != nil {
			_ = os.RemoveAll(root)
			return nil, appErr.WorkspaceError(err, dir)
		}
	}
	return ws, nil
}

// Destroy removes the whole task tree. It is idempotent and never fails;
// removal errors are logged so they cannot mask the caller's result.
func (w *Workspace) Destroy(ctx context.Context) {
	if w == nil || w.Root == "" {
		return
	}
	if err := os.RemoveAll(w.Root); err != nil {
		logger.Warn(ctx, "remove workspace failed", zap.String("path", w.Root), zap.Error(err))
	}
}
