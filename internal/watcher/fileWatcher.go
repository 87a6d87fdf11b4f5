package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"qbmerge/internal/util/logger/sl"
)

// FileWatcher watches job roots and fires its Trigger once the files under a
// root stop changing. Events are coalesced per root, so a burst touching many
// files of one job yields a single trigger. At most one trigger runs at a
// time; a root that settles during a run is queued once and fired after it.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	trigger   Trigger
	errors    chan error
	config    Config
	log       *slog.Logger
	debouncer *Debouncer
	metrics   *WatcherMetrics
	roots     map[string]struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	stopChan  chan struct{}
	closed    bool
	running   bool
	pending   []string
	wg        sync.WaitGroup
	runs      sync.WaitGroup
	mu        sync.RWMutex
}

func NewFileWatcher(trigger Trigger, config Config) (*FileWatcher, error) {
	if config.DebounceDuration == 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = IgnoredPatterns
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		watcher:   watcher,
		trigger:   trigger,
		errors:    make(chan error, config.BufferSize),
		config:    config,
		log:       config.Logger,
		debouncer: NewDebouncer(config.DebounceDuration),
		metrics:   NewWatcherMetrics(),
		roots:     make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}

	fw.wg.Add(1)
	go fw.run()

	return fw, nil
}

// Watch adds root and every directory below it.
func (fw *FileWatcher) Watch(root string) error {
	const op = "watcher.Watch"
	log := fw.log.With(slog.String("op", op), slog.String("root", root))

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return ErrWatcherClosed
	}

	root = filepath.Clean(root)
	if _, ok := fw.roots[root]; ok {
		return fmt.Errorf("%w: %s", ErrPathAlreadyWatched, root)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
			fw.metrics.RecordDirectoryAdded()
		}
		return nil
	})
	if err != nil {
		return err
	}

	fw.roots[root] = struct{}{}
	log.Info("watching")
	return nil
}

func (fw *FileWatcher) run() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.processEvent(event)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.handleError(err)
		}
	}
}

func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&WatchedEvents == 0 {
		return false
	}

	for _, pattern := range fw.config.IgnorePatterns {
		if strings.Contains(event.Name, pattern) {
			fw.metrics.RecordIgnored()
			fw.log.Debug("ignoring file", slog.String("path", event.Name), slog.String("pattern", pattern))
			return false
		}
	}

	return true
}

func (fw *FileWatcher) processEvent(event fsnotify.Event) {
	fw.metrics.RecordEvent()

	root, ok := fw.rootOf(event.Name)
	if !ok {
		return
	}

	// new directories inside a root must be watched too
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.watcher.Add(event.Name); err != nil {
				fw.handleError(fmt.Errorf("failed to watch directory %s: %w", event.Name, err))
			} else {
				fw.metrics.RecordDirectoryAdded()
			}
		}
	}

	fw.debouncer.Debounce(root, func() {
		fw.fire(root)
	})
}

// fire runs the trigger for root unless another run is in progress, in which
// case root is queued for the goroutine already running.
func (fw *FileWatcher) fire(root string) {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return
	}
	if fw.running {
		if !slices.Contains(fw.pending, root) {
			fw.pending = append(fw.pending, root)
			fw.metrics.RecordQueued()
		}
		fw.mu.Unlock()
		return
	}
	fw.running = true
	fw.runs.Add(1)
	fw.mu.Unlock()
	defer fw.runs.Done()

	for {
		if fw.ctx.Err() == nil {
			fw.metrics.RecordTrigger()
			if err := fw.trigger.OnChange(fw.ctx, root); err != nil {
				fw.handleError(fmt.Errorf("trigger for %s failed: %w", root, err))
			}
		}

		fw.mu.Lock()
		if len(fw.pending) == 0 || fw.closed {
			fw.running = false
			fw.pending = nil
			fw.mu.Unlock()
			return
		}
		root = fw.pending[0]
		fw.pending = fw.pending[1:]
		fw.mu.Unlock()
	}
}

func (fw *FileWatcher) rootOf(path string) (string, bool) {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	for root := range fw.roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

func (fw *FileWatcher) handleError(err error) {
	fw.metrics.RecordError()

	select {
	case fw.errors <- err:
	default:
		fw.log.Warn("error buffer full, dropping error", sl.Err(err))
	}
}

// Close stops watching, cancels a running trigger and waits for it.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return ErrWatcherClosed
	}
	fw.closed = true
	fw.mu.Unlock()

	close(fw.stopChan)
	fw.wg.Wait()

	fw.debouncer.Stop()
	fw.cancel()
	fw.runs.Wait()

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

// Roots returns the watched roots, sorted.
func (fw *FileWatcher) Roots() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	roots := make([]string, 0, len(fw.roots))
	for root := range fw.roots {
		roots = append(roots, root)
	}
	slices.Sort(roots)
	return roots
}

func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) Metrics() *WatcherMetrics {
	return fw.metrics
}
