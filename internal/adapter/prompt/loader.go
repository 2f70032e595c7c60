package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Loader serves the current catalogue and reloads it when the backing file
// changes. A Loader without a path serves the embedded defaults.
type Loader struct {
	path     string
	logger   *slog.Logger
	defaults *Catalogue

	mu      sync.RWMutex
	current *Catalogue
}

// NewLoader performs the initial load. An invalid file is an error here;
// later reload failures keep the previous catalogue.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	l := &Loader{
		path:     path,
		logger:   logger.With("component", "prompt_loader"),
		defaults: Default(),
	}
	if path == "" {
		l.current = l.defaults
		return l, nil
	}
	c, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = c
	return l, nil
}

// Catalogue returns the current catalogue.
func (l *Loader) Catalogue() *Catalogue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Reload forces an immediate re-read of the file.
func (l *Loader) Reload() error {
	if l.path == "" {
		return nil
	}
	c, err := l.load()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.current = c
	l.mu.Unlock()
	return nil
}

// Watch hot-reloads the catalogue on file changes until stop is called.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return func() {}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("prompt watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("prompt watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := l.Reload(); err != nil {
						l.logger.Warn("prompt reload failed, keeping previous catalogue", "error", err)
						continue
					}
					l.logger.Info("prompt catalogue reloaded", "path", l.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("prompt watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

func (l *Loader) load() (*Catalogue, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", l.path, err)
	}
	c, err := parse(l.defaults, data)
	if err != nil {
		return nil, fmt.Errorf("prompts %s: %w", l.path, err)
	}
	return c, nil
}
