// Package config loads the engine's tunables from a JSON file and
// reloads them on change, grounded on the teacher's config-manager JSON
// shape and its filesystem-watcher package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Engine holds the demo's tunables as loaded from JSON. Only Workers and
// QueueCapacity are read (by cmd/sockengine-demo, to size the task pool);
// the other fields are parsed and kept but nothing in this repository
// acts on them.
type Engine struct {
	// ListenBacklog is a listen backlog value; Listen is not given it
	// (the demo passes its own backlog).
	ListenBacklog int `json:"listen_backlog"`
	// Workers is the task pool's worker goroutine count.
	Workers int `json:"workers"`
	// QueueCapacity bounds the task pool's pending-event queue.
	QueueCapacity int `json:"queue_capacity"`
	// ReusePortDefault is a SO_REUSEPORT preference; Create does not read
	// it, so SO_REUSEPORT is only set through Socket.SetReusePort.
	ReusePortDefault bool `json:"reuseport_default"`
	// MaxIOVectors is a buffer-count limit; recvv/sendv requests are not
	// checked against it.
	MaxIOVectors int `json:"max_io_vectors"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `json:"log_level"`
	// RequireCapabilityCheck is a capability-gate preference; neither
	// NewManager nor the demos read it (the demos always exit when
	// CheckCapability fails).
	RequireCapabilityCheck bool `json:"require_capability_check"`
}

// Default returns the engine's built-in tunables, used when no config
// file is supplied.
func Default() Engine {
	return Engine{
		ListenBacklog:    128,
		Workers:          4,
		QueueCapacity:    1024,
		ReusePortDefault: false,
		MaxIOVectors:     64,
		LogLevel:         "info",
	}
}

// Load reads and parses an Engine config from path.
func Load(path string) (Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Engine{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Watcher reloads an Engine config from disk whenever the file changes,
// adapted from the runtime's fsnotify-backed filesystem watcher: the
// same Watch/Events-channel shape, narrowed to a single file and to
// delivering parsed config rather than raw filesystem events.
type Watcher struct {
	path string

	fsw *fsnotify.Watcher

	mu      sync.RWMutex
	current Engine

	updates chan Engine
	errs    chan error
	done    chan struct{}
}

// NewWatcher loads path once and starts watching it for further writes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}

	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		fsw:     fsw,
		current: cfg,
		updates: make(chan Engine, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}

	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				select {
				case w.errs <- err:
				default:
				}

				continue
			}

			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()

			select {
			case w.updates <- cfg:
			default:
				// Drop the stale pending update in favor of the latest.
				select {
				case <-w.updates:
				default:
				}

				w.updates <- cfg
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			select {
			case w.errs <- err:
			default:
			}
		case <-w.done:
			return
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Engine {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current
}

// Updates delivers each successfully reloaded configuration in turn.
func (w *Watcher) Updates() <-chan Engine { return w.updates }

// Errors delivers reload failures (both watch errors and parse errors).
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
