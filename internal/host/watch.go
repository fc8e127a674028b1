package host

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// DebounceInterval is how long the watcher waits after the last write
// before reloading. Editors often write a file in several steps.
var DebounceInterval = 100 * time.Millisecond

// WatchFunc receives every reload: a validated manifest, or the error that
// prevented loading it.
type WatchFunc func(m *Manifest, err error)

// WatchCleanupFunc stops the watcher and waits for it to exit.
type WatchCleanupFunc func() error

// Watch reloads the manifest at path whenever it changes and calls fn from
// the watcher goroutine. The directory is watched rather than the file so
// that atomic replacement by rename is seen. Reload errors are passed to
// fn and never stop the watcher.
func Watch(ctx context.Context, path string, fn WatchFunc) (WatchCleanupFunc, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	var (
		mu        sync.Mutex
		debouncer *time.Timer
	)

	reload := func() {
		if sctx.IsStopping() {
			return
		}
		m, err := LoadManifest(path)
		if err != nil {
			debug.Error(fmt.Errorf("host: reload: %w", err))
		}
		fn(m, err)
	}

	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				debug.Trace("host: %s", event)

				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(DebounceInterval, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !sctx.IsStopping() {
					debug.Error(fmt.Errorf("host: watch: %w", err))
				}
			}
		}
		return nil
	})

	debug.Verbose("host: watching %s", path)

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}
	return cleanup, nil
}
