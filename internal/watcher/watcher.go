// Package watcher reports contract files dropped into an inbox directory.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"compliance-backend/internal/shared/telemetry"
)

// DefaultSettle is how long a file must stay quiet before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Watcher emits the path of each new or rewritten file with a watched
// extension once writes to it have settled.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	settle     time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a watcher for the given extensions (".pdf" and ".docx" when
// empty). A settle of zero uses DefaultSettle.
func New(extensions []string, settle time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".pdf", ".docx"}
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{watcher: w, extensions: extensions, settle: settle, timers: map[string]*time.Timer{}}, nil
}

// Watch starts monitoring dir. The channel closes when ctx ends or the
// watcher is closed.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	out := make(chan string, 16)
	ready := make(chan string, 16)
	go func() {
		defer close(out)
		defer w.stopTimers()
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-ready:
				select {
				case out <- path:
				case <-ctx.Done():
					return
				}
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.watched(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				w.schedule(ctx, event.Name, ready)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				telemetry.Warn("watcher.error", map[string]any{"dir": dir, "error": err.Error()})
			}
		}
	}()
	return out, nil
}

// schedule restarts the settle timer of path.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) watched(path string) bool {
	base := filepath.Base(path)
	// Editors and partial downloads leave hidden or temporary files behind.
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
