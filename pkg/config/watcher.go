package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes to a fixed set of files. Events within the debounce
// window are delivered together as one sorted list of paths.
type Watcher struct {
	paths    map[string]bool
	watcher  *fsnotify.Watcher
	changes  chan []string
	debounce time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
}

// NewWatcher watches the directories containing paths and filters events
// down to those files. A zero debounce selects DefaultDebounce.
func NewWatcher(paths []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		paths:    make(map[string]bool),
		watcher:  fw,
		changes:  make(chan []string, 1),
		debounce: debounce,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		pending:  make(map[string]bool),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			cancel()
			_ = fw.Close()
			return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			cancel()
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	go w.watchLoop(ctx)
	return w, nil
}

// Changes delivers batches of changed paths. It is closed by Close.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Close stops the watcher and cleans up resources.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		close(w.changes)
		w.changes = nil
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)
			if !w.paths[name] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.changes == nil || len(w.pending) == 0 {
		return
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	sort.Strings(batch)

	select {
	case w.changes <- batch:
		w.pending = make(map[string]bool)
	default:
		// Consumer is busy; keep the paths for the next flush.
		w.timer = time.AfterFunc(w.debounce, w.flush)
	}
}

// Provider holds the current configuration and reloads it when the file
// changes. Invalid edits are logged and the previous configuration is kept.
type Provider struct {
	path    string
	watcher *Watcher
	logger  *slog.Logger

	mu          sync.RWMutex
	current     *Config
	subscribers []chan *Config
	wg          sync.WaitGroup
}

// NewProvider loads path and starts watching it.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWatcher([]string{path}, DefaultDebounce, logger)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: path, watcher: w, logger: logger, current: cfg}
	p.wg.Add(1)
	go p.loop()
	return p, nil
}

// Current returns the active configuration.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel that receives every successfully reloaded
// configuration. The channel is closed by Close.
func (p *Provider) Subscribe() <-chan *Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *Config, 1)
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// Close stops watching and closes subscriber channels.
func (p *Provider) Close() error {
	err := p.watcher.Close()
	p.wg.Wait()
	p.mu.Lock()
	for _, ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = nil
	p.mu.Unlock()
	return err
}

func (p *Provider) loop() {
	defer p.wg.Done()
	for range p.watcher.Changes() {
		cfg, err := Load(p.path)
		if err != nil {
			p.logger.Error("configuration reload failed", "path", p.path, "error", err)
			continue
		}
		p.mu.Lock()
		p.current = cfg
		subscribers := append([]chan *Config(nil), p.subscribers...)
		p.mu.Unlock()
		p.logger.Info("configuration reloaded", "path", p.path)

		for _, ch := range subscribers {
			select {
			case ch <- cfg:
			default:
				// Skip if channel is full (slow consumer)
			}
		}
	}
}
