package graph

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the catalog file and hot-reloads it into a Holder.
// A reload that fails validation (including a prerequisite cycle) is
// rejected and the previously installed catalog stays in effect.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	holder   *Holder
	path     string
	debounce time.Duration
	lastLoad map[string]time.Time
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool

	// Stats for tests and debugging.
	reloads int
	rejects int
}

// NewWatcher creates a catalog watcher. The holder must already contain a
// valid catalog.
func NewWatcher(path string, holder *Holder, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:  fw,
		holder:   holder,
		path:     path,
		debounce: debounce,
		lastLoad: make(map[string]time.Time),
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Watches the parent directory because editors often
// replace files via rename.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.running = true
	go w.loop()
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	w.watcher.Close()
}

// Stats returns (reloads, rejects) so far.
func (w *Watcher) Stats() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.rejects
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.maybeReload(ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}

// maybeReload debounces rapid saves, then attempts the swap.
func (w *Watcher) maybeReload(name string) {
	w.mu.Lock()
	now := time.Now()
	if last, ok := w.lastLoad[name]; ok && now.Sub(last) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastLoad[name] = now
	w.mu.Unlock()

	g, err := LoadCatalogFile(w.path)
	if err != nil {
		w.mu.Lock()
		w.rejects++
		w.mu.Unlock()
		w.logger.Warn("catalog reload rejected, keeping prior catalog",
			zap.String("path", w.path), zap.Error(err))
		return
	}

	w.holder.Swap(g)
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Info("catalog reloaded", zap.String("path", w.path), zap.Int("concepts", g.Len()))
}
