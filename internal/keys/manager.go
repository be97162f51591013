package keys

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the live Registry and swaps it atomically on reload, the
// same pattern internal/config/manager.go uses for the gateway's hot
// reloadable configuration: readers always see either the old or the new
// snapshot, never a half-updated one, and reload is a full rebuild rather
// than an in-place mutation.
type Manager struct {
	registry atomic.Pointer[Registry]
	path     string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewManager loads the registry at path and returns a Manager wrapping it.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path, logger: logger}
	m.registry.Store(registry)
	return m, nil
}

// Get returns the current registry snapshot. Safe to call from any
// goroutine without additional synchronization.
func (m *Manager) Get() *Registry {
	return m.registry.Load()
}

// Reload rebuilds the registry from disk and swaps it in. It is not
// required to coordinate with in-flight admissions: the host is expected
// to call it only at quiescent points, and the atomic pointer swap
// guarantees no reader ever observes a partially-built map.
func (m *Manager) Reload() error {
	registry, err := Load(m.path)
	if err != nil {
		return err
	}
	m.registry.Store(registry)
	m.logger.Info("key registry reloaded", "keys", registry.Count())
	return nil
}

// Watch starts an fsnotify watch on the registry file and reloads on every
// write/create event, debounced the same 500ms as the gateway's config
// watcher to avoid reload storms from editors that write in several steps.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher

	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = m.watcher.Close()
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						m.logger.Error("failed to reload key registry, keeping current", "error", err)
					}
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("key registry watcher error", "error", err)
		}
	}
}

// Close stops the file watcher, if one was started.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
