// Package watch runs the sync engine continuously, re-triggering on
// filesystem events in either tree.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sheide/contentsync/internal/config"
	"github.com/sheide/contentsync/internal/sync"
)

// Watcher observes the source and target trees and debounces change events
// into sync runs.
type Watcher struct {
	cfg         *config.Config
	engine      *sync.Engine
	logger      *slog.Logger
	syncMu      gosync.Mutex // guards syncRunning and syncPending
	syncRunning bool         // whether a sync is currently in progress
	syncPending bool         // whether another sync is needed after the current one
	debounce    *debouncer
}

// debouncer coalesces bursts of filesystem events into a single trigger.
type debouncer struct {
	mu       gosync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// New creates a watcher around an existing engine.
func New(cfg *config.Config, engine *sync.Engine, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		engine:   engine,
		logger:   logger,
		debounce: &debouncer{delay: cfg.Watch.Debounce},
	}
}

// Start performs an initial sync, then blocks watching both trees until the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("performing initial sync before watching")
	w.performSync(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = fsw.Close()
	}()

	for _, root := range []string{w.cfg.Source.Root, w.cfg.Target.Root} {
		if err := w.addRecursive(fsw, root); err != nil {
			return err
		}
	}

	w.logger.Info("watching for changes",
		"source", w.cfg.Source.Root,
		"target", w.cfg.Target.Root,
		"debounce", w.cfg.Watch.Debounce)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down watcher")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}

			// New directories must be watched too; fsnotify watches are
			// not recursive.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory",
							"path", event.Name, "error", err)
					}
				}
			}

			w.logger.Debug("filesystem event", "op", event.Op.String(), "path", event.Name)
			w.debounce.trigger(func() {
				w.performSync(ctx)
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// ignored filters paths the watcher must never react to: backup snapshots,
// dotfiles, and the in-flight temp files the writer itself creates.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	rel, err := filepath.Rel(w.cfg.Target.Root, path)
	if err == nil && !strings.HasPrefix(rel, "..") {
		if rel == ".backups" || strings.HasPrefix(rel, ".backups"+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addRecursive registers watches for dir and every subdirectory, skipping
// dot-prefixed directories. A missing dir is not an error; it may be
// created later.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// performSync executes the sync operation with single-flight semantics.
// If a sync is already in progress, at most one additional run is queued;
// further concurrent triggers are dropped.
func (w *Watcher) performSync(ctx context.Context) {
	w.syncMu.Lock()
	if w.syncRunning {
		w.syncPending = true
		w.syncMu.Unlock()
		w.logger.Info("sync already in progress, queuing pending re-run")
		return
	}
	w.syncRunning = true
	w.syncMu.Unlock()

	for {
		if _, err := w.engine.Run(ctx, w.cfg.Sync.Direction); err != nil {
			w.logger.Error("sync failed", "error", err)
		}

		// Atomically check whether another sync was requested while we
		// were running. If not, release the running slot and stop.
		w.syncMu.Lock()
		if !w.syncPending {
			w.syncRunning = false
			w.syncMu.Unlock()
			return
		}
		w.syncPending = false
		w.syncMu.Unlock()

		w.logger.Info("re-running sync due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay, resetting
// the countdown on every call.
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}
