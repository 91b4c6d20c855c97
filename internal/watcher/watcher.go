// Package watcher re-ingests documents when files change under the watched roots.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/hanashi/internal/indexer"
	"github.com/hyperjump/hanashi/internal/storage"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Sink receives file changes. *indexer.Indexer implements it.
type Sink interface {
	Accepts(path string) bool
	IndexFile(ctx context.Context, path string) (*indexer.FileResult, error)
	DeleteFile(ctx context.Context, path string) error
}

// Watcher watches root directories and forwards debounced changes to a Sink.
type Watcher struct {
	roots     []string
	sink      Sink
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	ctx      context.Context
	pending  map[string]*time.Timer
	inflight sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is re-ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithRecursive controls whether subdirectories are watched. Defaults to true.
func WithRecursive(on bool) Option {
	return func(w *Watcher) { w.recursive = on }
}

// New returns a watcher over roots. Nothing is watched until Start.
func New(roots []string, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		roots:     roots,
		sink:      sink,
		recursive: true,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RootsFor returns the directories to watch for a document location pattern
// ("file:" prefix, "root/**/*.md", a directory, or a glob).
func RootsFor(pattern string) []string {
	pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "file:")
	if pattern == "" {
		return nil
	}
	if i := strings.Index(pattern, "**"); i >= 0 {
		return []string{filepath.Clean(pattern[:i])}
	}
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		return []string{filepath.Clean(pattern)}
	}
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return []string{filepath.Dir(pattern[:i] + "x")}
	}
	return []string{filepath.Dir(pattern)}
}

// Start begins watching. It returns once every root is registered; events are
// handled until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.ctx = ctx
	w.mu.Unlock()
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.logger.Info("watching documents", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := ev.Name
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if ev.Op.Has(fsnotify.Create) && w.recursive {
				w.newDirectory(path)
			}
			return
		}
		if w.sink.Accepts(path) {
			w.schedule(path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancel(path)
		if w.sink.Accepts(path) {
			w.remove(path)
		}
	}
}

// newDirectory watches a directory created or moved under a root and ingests its files.
func (w *Watcher) newDirectory(dir string) {
	if err := w.addTree(dir); err != nil {
		w.logger.Warn("watch new directory failed", zap.String("path", dir), zap.Error(err))
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.sink.Accepts(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) addTree(root string) error {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return errors.New("watcher not started")
	}
	root = filepath.Clean(root)
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.ingest(path) })
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	ctx := w.ctx
	stopped := w.fsw == nil
	if !stopped {
		w.inflight.Add(1)
	}
	w.mu.Unlock()
	if stopped {
		return
	}
	defer w.inflight.Done()

	res, err := w.sink.IndexFile(ctx, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("re-ingest failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.logger.Info("document re-ingested",
		zap.String("path", path),
		zap.String("document_id", res.DocumentID),
		zap.Bool("skipped", res.Skipped),
		zap.Int("chunks", len(res.Chunks)))
}

func (w *Watcher) remove(path string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if err := w.sink.DeleteFile(ctx, path); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			w.logger.Warn("remove document failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.logger.Info("document removed", zap.String("path", path))
}

// Roots returns the watched root directories.
func (w *Watcher) Roots() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops watching, drops pending changes and waits for in-flight ingestion.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw := w.fsw
	w.fsw = nil
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.stopOnce.Do(func() { close(w.done) })
	w.inflight.Wait()
}
