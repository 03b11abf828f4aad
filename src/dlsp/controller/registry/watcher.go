package registry

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"go.uber.org/zap"
)

const _watchedOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// watch reconfigures a project when one of its configuration files changes on disk.
// It returns once the watcher is closed.
func (c *controller) watch() {
	defer close(c.watchDone)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleFileEvent(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warnw("project file watcher", zap.Error(err))
		}
	}
}

func (c *controller) handleFileEvent(event fsnotify.Event) {
	if event.Op&_watchedOps == 0 {
		return
	}
	root := filepath.Dir(event.Name)
	client := c.lookup(root)
	if client == nil || !isProjectFile(entity.Project{Root: root}, event.Name) {
		return
	}

	c.logger.Debugw("project file changed", "path", event.Name, "op", event.Op.String())
	if err := c.reconfigure(c.ctx, client); err != nil {
		c.logger.Warnw("reconfiguring client", "root", root, zap.Error(err))
	}
}
