package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the directory must be quiet before a reload
const DefaultSettle = 500 * time.Millisecond

// Watcher reloads the artifact pair whenever a new one is published into its
// directory
type Watcher struct {
	dir      string
	settle   time.Duration
	onReload func(*Artifact)
	logger   *slog.Logger
	fs       *fsnotify.Watcher
}

// NewWatcher watches dir and calls onReload with every pair that loads
// cleanly. Pairs that fail to load are logged and skipped; the caller keeps
// serving the previous one.
func NewWatcher(dir string, onReload func(*Artifact), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact directory: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}

	return &Watcher{
		dir:      absDir,
		settle:   DefaultSettle,
		onReload: onReload,
		logger:   logger,
		fs:       fsWatcher,
	}, nil
}

// Run processes events until ctx is done, then closes the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	// Save publishes the classifier last; its arrival marks a complete pair
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ClassifierFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			timer.Reset(w.settle)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	a, err := Load(w.dir)
	if err != nil {
		w.logger.Error("failed to reload model artifact, keeping the current one", "dir", w.dir, "error", err)
		return
	}
	w.logger.Info("model artifact reloaded",
		"dir", w.dir,
		"vocabulary", a.Vectorizer.Size(),
		"features", a.Dimension(),
	)
	w.onReload(a)
}
