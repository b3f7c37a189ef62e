// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// File watcher that fires reload hooks when a watched file changes.

package control

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// DefaultReloadDelay coalesces the burst of events an editor or an atomic
// rename produces.
const DefaultReloadDelay = 100 * time.Millisecond

// Watcher calls its hooks after the watched file is written, created or
// renamed into place.
type Watcher struct {
	path    string
	delay   time.Duration
	logger  pslog.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	hooks []func()

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// WatchFile starts watching path. The parent directory is watched so that
// replace-by-rename is seen.
func WatchFile(path string, delay time.Duration, logger pslog.Logger) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("control: watch %q: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("control: create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("control: watch directory of %q: %w", abs, err)
	}
	w := &Watcher{
		path:    abs,
		delay:   delay,
		logger:  logger.With("sys", "control.watch"),
		watcher: fw,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// OnReload registers a hook. Hooks run sequentially on the watcher goroutine.
func (w *Watcher) OnReload(fn func()) {
	w.mu.Lock()
	w.hooks = append(w.hooks, fn)
	w.mu.Unlock()
}

// Close stops the watcher and waits for a running hook to return.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	var fire <-chan time.Time
	var pending *time.Timer
	for {
		select {
		case <-w.stop:
			if pending != nil {
				pending.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.NewTimer(w.delay)
			fire = pending.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("control.watch.error", "path", w.path, "error", err)
		case <-fire:
			fire, pending = nil, nil
			w.logger.Info("control.watch.reload", "path", w.path)
			w.fire()
		}
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	hooks := append([]func(){}, w.hooks...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
