package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/corpus"
)

const (
	// DefaultDebounce collapses the burst of events an atomic save produces.
	DefaultDebounce = 2 * time.Second

	// DefaultPollInterval is used for stores without a local file.
	DefaultPollInterval = time.Minute
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize corpus watcher")

// Watcher re-indexes the corpus when its store changes. File-backed stores
// are watched with fsnotify; others are polled.
type Watcher struct {
	store    corpus.Store
	index    *Store
	logger   *zap.Logger
	debounce time.Duration
	poll     time.Duration

	lastStat *corpus.Stat
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last file event.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPollInterval sets the polling period for stores without a file.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.poll = d
		}
	}
}

// NewWatcher creates a watcher that feeds store changes into idx.
func NewWatcher(store corpus.Store, idx *Store, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		store:    store,
		index:    idx,
		logger:   logger,
		debounce: DefaultDebounce,
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled. A failed reload is logged and the
// current snapshot stays published.
func (w *Watcher) Run(ctx context.Context) error {
	if fb, ok := w.store.(corpus.FileBacked); ok {
		return w.watchFile(ctx, fb.Path())
	}
	return w.pollStore(ctx)
}

func (w *Watcher) watchFile(ctx context.Context, path string) error {
	path = filepath.Clean(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer fw.Close()

	// Watch the directory: an atomic save renames a temp file over the
	// corpus, which drops a watch on the file itself. The directory may not
	// exist until the first save.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWatcherFailed, dir, err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, dir, err)
	}
	w.logger.Info("watching corpus file", zap.String("path", path), zap.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !corpusEvent(ev.Name, path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("corpus watcher error", zap.Error(err))
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

// corpusEvent reports whether name is the corpus file or its SQLite
// write-ahead log. WAL commits only touch the main file at checkpoint.
func corpusEvent(name, path string) bool {
	name = filepath.Clean(name)
	return name == path || name == path+"-wal"
}

func (w *Watcher) pollStore(ctx context.Context) error {
	w.logger.Info("polling corpus store", zap.Duration("interval", w.poll))

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.unchanged(ctx) {
				continue
			}
			w.reload(ctx)
		}
	}
}

// unchanged reports whether the store's artifact metadata matches the last
// reload. Stores that cannot stat always reload; unchanged chunks keep their
// embeddings, so that is only a re-chunk.
func (w *Watcher) unchanged(ctx context.Context) bool {
	st, ok := w.store.(corpus.Statter)
	if !ok {
		return false
	}
	stat, err := st.Stat(ctx)
	if err != nil {
		w.logger.Debug("corpus stat failed", zap.Error(err))
		return false
	}
	if w.lastStat != nil && w.lastStat.Records == stat.Records && w.lastStat.LastModified.Equal(stat.LastModified) {
		return true
	}
	w.lastStat = &stat
	return false
}

func (w *Watcher) reload(ctx context.Context) {
	c, err := w.store.Load(ctx)
	if err != nil {
		w.logger.Warn("corpus reload failed", zap.Error(err))
		return
	}
	snap, err := w.index.Update(ctx, c)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("index update failed", zap.Error(err))
		}
		return
	}
	w.logger.Info("corpus re-indexed",
		zap.Uint64("version", snap.Version()),
		zap.Int("chunks", snap.Stats().Chunks))
}
