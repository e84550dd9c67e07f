package pdf

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const (
	workspacePrefix = "pdf2zh-engine-"
	outputDirName   = "out"
)

// Workspace はジョブ専用の一時ディレクトリです。Remove で配下ごと削除します。
type Workspace struct {
	Dir    string
	OutDir string

	removeOnce sync.Once
	removeErr  error
}

// NewWorkspace は root 配下に一意な作業ディレクトリを作成します。root が空ならOSの一時ディレクトリを使います。
func NewWorkspace(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create scratch root %s", root)
		}
	}
	dir, err := os.MkdirTemp(root, workspacePrefix+"*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create workspace")
	}
	out := filepath.Join(dir, outputDirName)
	if err := os.MkdirAll(out, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	return &Workspace{Dir: dir, OutDir: out}, nil
}

// Remove は作業ディレクトリを削除します。複数回呼んでも削除は一度だけです。
func (w *Workspace) Remove() error {
	if w == nil {
		return nil
	}
	w.removeOnce.Do(func() {
		if w.Dir == "" {
			return
		}
		if err := os.RemoveAll(w.Dir); err != nil {
			w.removeErr = errors.Wrapf(err, "failed to remove workspace %s", w.Dir)
		}
	})
	return w.removeErr
}
