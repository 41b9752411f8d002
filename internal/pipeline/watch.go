package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of filesystem events into one run.
// Editors commonly emit several writes per save.
const watchDebounce = 2 * time.Second

// Watch runs the pipeline once, then re-runs it whenever files under the
// ingest root change, debounced. It blocks until the context is cancelled.
// Per-file failures inside a run do not stop watching; only fatal errors do.
func (p *Pipeline) Watch(ctx context.Context, opts RunOptions) error {
	if _, err := p.Run(ctx, opts); err != nil {
		return err
	}
	// Force applies to the initial pass only.
	opts.Force = false

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := p.addWatchDirs(watcher); err != nil {
		return err
	}

	slog.Info("watching for changes", slog.String("root", p.cfg.Ingest.Root))

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			// New directories must be watched to see files created inside.
			if event.Op.Has(fsnotify.Create) && p.cfg.Ingest.Recursive {
				_ = p.addWatchDirs(watcher)
			}
			slog.Debug("change detected",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := p.Run(ctx, opts); err != nil {
				return err
			}
		}
	}
}

// addWatchDirs registers the root and, when recursive, every subdirectory.
// Already-watched paths are re-added harmlessly.
func (p *Pipeline) addWatchDirs(watcher *fsnotify.Watcher) error {
	root := p.cfg.Ingest.Root
	if !p.cfg.Ingest.Recursive {
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		_ = watcher.Add(path)
		return nil
	})
}

func relevantEvent(event fsnotify.Event) bool {
	return event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Remove) ||
		event.Op.Has(fsnotify.Rename)
}
