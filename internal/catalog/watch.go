package catalog

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher flags changes to the action directory so the menu can rescan
// before its next render.
type Watcher struct {
	watcher *fsnotify.Watcher
	changed atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Watch starts watching dir. The caller must Close the watcher.
func Watch(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog: watch: %w", err)
	}
	if err := fw.Add(filepath.Clean(dir)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("catalog: watch %s: %w", dir, err)
	}
	w := &Watcher{watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.changed.Store(true)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Changed reports whether the directory changed since the last call and
// clears the flag.
func (w *Watcher) Changed() bool {
	if w == nil {
		return false
	}
	return w.changed.Swap(false)
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
