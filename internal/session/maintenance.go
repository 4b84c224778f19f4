package session

import (
	"context"
	"path/filepath"
	"time"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
	"github.com/AltairaLabs/devserver-mcp/internal/watcher"
)

// startWatch restarts the session whenever its sources change
func (o *Orchestrator) startWatch(info *types.SessionInfo) {
	id := info.ID
	w, err := watcher.New(watcher.Options{
		Root:       info.Cwd,
		Extensions: o.opts.WatchExtensions[info.Category],
		Ignore:     o.opts.WatchIgnore,
		Debounce:   o.opts.WatchDebounce,
	}, func(path string) {
		o.onSourceChange(id, info.Cwd, path)
	}, o.logger)
	if err != nil {
		o.logger.Warn("watch mode unavailable", "session_id", id, "error", err)
		o.system(id, "watch mode unavailable: %v", err)
		return
	}

	o.mu.Lock()
	if old := o.watchers[id]; old != nil {
		old.Close()
	}
	o.watchers[id] = w
	o.mu.Unlock()
}

func (o *Orchestrator) stopWatch(sessionID string) {
	o.mu.Lock()
	w := o.watchers[sessionID]
	delete(o.watchers, sessionID)
	o.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			o.logger.Debug("failed to close watcher", "session_id", sessionID, "error", err)
		}
	}
}

func (o *Orchestrator) onSourceChange(sessionID, root, path string) {
	o.mu.Lock()
	if o.restarting[sessionID] || o.watchers[sessionID] == nil {
		o.mu.Unlock()
		return
	}
	o.restarting[sessionID] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.restarting, sessionID)
		o.mu.Unlock()
	}()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	if _, err := o.restart(context.Background(), sessionID, "file changed: "+rel); err != nil {
		o.logger.Warn("watch restart failed", "session_id", sessionID, "error", err)
	}
}

// CleanupStale evicts finished sessions that completed more than maxAge ago,
// dropping their log buffers. It returns the number evicted.
func (o *Orchestrator) CleanupStale(maxAge time.Duration) int {
	ids := o.store.CompletedBefore(o.now().Add(-maxAge))

	evicted := 0
	for _, id := range ids {
		o.mu.Lock()
		if _, live := o.runs[id]; live {
			o.mu.Unlock()
			continue
		}
		delete(o.requested, id)
		delete(o.userStops, id)
		o.mu.Unlock()

		o.stopWatch(id)
		o.store.Delete(id)
		o.logs.Remove(id)
		evicted++
	}

	if evicted > 0 {
		o.logger.Info("evicted stale sessions", "count", evicted, "max_age", maxAge)
	}
	return evicted
}

// Shutdown stops every active session, killing those still alive when ctx ends
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	runs := make(map[string]*run, len(o.runs))
	for id, r := range o.runs {
		runs[id] = r
	}
	watched := make([]string, 0, len(o.watchers))
	for id := range o.watchers {
		watched = append(watched, id)
	}
	o.mu.Unlock()

	for _, id := range watched {
		o.stopWatch(id)
	}

	for id := range runs {
		if _, err := o.Stop(ctx, id, types.StopOptions{}); err != nil {
			o.logger.Warn("failed to stop session during shutdown", "session_id", id, "error", err)
		}
	}

	for id, r := range runs {
		select {
		case <-r.finished:
		case <-ctx.Done():
			o.kill(id, r)
			select {
			case <-r.finished:
			case <-time.After(o.opts.DrainTimeout):
				o.logger.Warn("session did not exit during shutdown", "session_id", id)
			}
		}
	}

	return ctx.Err()
}
