package flowboard

import (
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

// WorkspaceWatcher feeds out-of-band edits to workspace markdown files
// into the event pipeline. Edits made through the HTTP API already
// publish their own events; the watcher covers editors and agents that
// write the files directly.
type WorkspaceWatcher struct {
	watcher  *fsnotify.Watcher
	onEdit   func(fileName string)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	done chan struct{}
}

// StartWorkspaceWatcher watches dir for writes to *.md files and calls
// onEdit with the base file name after the debounce window closes.
// Rapid successive writes to the same file collapse into one call.
func StartWorkspaceWatcher(dir string, debounce time.Duration, onEdit func(fileName string)) (*WorkspaceWatcher, error) {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &WorkspaceWatcher{
		watcher:  fsw,
		onEdit:   onEdit,
		debounce: debounce,
		pending:  map[string]*time.Timer{},
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *WorkspaceWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".md") {
				continue
			}
			w.schedule(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("workspace watcher: %v", err)
		}
	}
}

func (w *WorkspaceWatcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[name]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()
		w.onEdit(name)
	})
}

// Close stops the watcher and cancels pending debounce timers. Calls
// already past their debounce window may still fire.
func (w *WorkspaceWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	w.mu.Lock()
	for name, timer := range w.pending {
		timer.Stop()
		delete(w.pending, name)
	}
	w.mu.Unlock()
	return err
}
