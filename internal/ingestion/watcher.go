package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/kin-go/internal/logger"
)

// DefaultDebounce is how long the watcher waits after the last change
// before re-running.
const DefaultDebounce = 2 * time.Second

// RebuildFunc re-runs the pipeline after a batch of changes. changed holds
// the absolute paths that triggered it.
type RebuildFunc func(ctx context.Context, changed []string) error

// WatchFiles monitors the given files and calls rebuild once per batch of
// changes. Directories are watched rather than the files themselves so that
// editors that save by rename are still seen. Blocks until ctx is
// cancelled.
func WatchFiles(ctx context.Context, paths []string, debounce time.Duration, rebuild RebuildFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	if len(watched) == 0 {
		return fmt.Errorf("nothing to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	changed := make(map[string]bool)
	batchTimer := time.NewTimer(debounce)
	batchTimer.Stop()

	logger.Info("watching for changes", "files", len(watched))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isContentEvent(event) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			changed[abs] = true
			batchTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)

		case <-batchTimer.C:
			if len(changed) == 0 {
				continue
			}
			batch := sortedKeys(changed)
			changed = make(map[string]bool)

			logger.Info("rebuilding", "changed", len(batch))
			if err := rebuild(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("rebuild failed", "err", err)
			}
		}
	}
}

func isContentEvent(e fsnotify.Event) bool {
	return e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Rename)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
