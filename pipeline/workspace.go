package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/signalsfoundry/swath-geolocator/internal/fileaccess"
	"github.com/signalsfoundry/swath-geolocator/internal/logging"
)

// Workspace is a scratch directory owned by one scene run.
type Workspace struct {
	Dir  string
	keep bool
}

// NewWorkspace creates a fresh directory under base named after the scene.
// With keep set, Release leaves it in place for inspection.
func NewWorkspace(base, scene string, keep bool) (*Workspace, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("workspace base: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, fileaccess.MakeValidObjectName(scene)+"-")
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{Dir: dir, keep: keep}, nil
}

// Release removes the workspace unless it is being kept. It is meant to be
// deferred so cleanup runs on success and failure alike.
func (w *Workspace) Release(ctx context.Context, log logging.Logger) {
	if w == nil || w.Dir == "" {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	if w.keep {
		log.Info(ctx, "keeping workspace", logging.String("dir", w.Dir))
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Warn(ctx, "workspace cleanup failed", logging.String("dir", w.Dir), logging.Err(err))
		return
	}
	log.Debug(ctx, "workspace removed", logging.String("dir", w.Dir))
}
