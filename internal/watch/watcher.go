// Package watch runs the auto-extraction trigger for incidents written
// directly into a file store's incident directory, for example by an agent
// that records incidents without going through the API.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/store"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 200 * time.Millisecond

// Loader reads incidents by id.
type Loader interface {
	GetIncident(ctx context.Context, id string) (*incident.Incident, error)
}

// Trigger runs the auto-extraction check for a stored incident.
type Trigger interface {
	MaybeExtract(ctx context.Context, inc *incident.Incident) (*incident.Pattern, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// OnPattern registers fn to receive every pattern the watcher produces.
func OnPattern(fn func(*incident.Pattern)) Option {
	return func(w *Watcher) { w.onPattern = fn }
}

// Watcher debounces incident file events and hands each settled incident
// to a Trigger. Incidents are handled one at a time.
type Watcher struct {
	dir       string
	loader    Loader
	trigger   Trigger
	debounce  time.Duration
	logger    *zap.Logger
	onPattern func(*incident.Pattern)

	fsw   *fsnotify.Watcher
	ready chan string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher for dir. Call Run to start it.
func New(dir string, loader Loader, trigger Trigger, opts ...Option) (*Watcher, error) {
	if loader == nil || trigger == nil {
		return nil, errors.New("loader and trigger are required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		loader:   loader,
		trigger:  trigger,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		fsw:      fsw,
		ready:    make(chan string, 64),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	w.logger.Info("watching incidents", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.observe(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case id := <-w.ready:
			w.handle(ctx, id)
		}
	}
}

// observe schedules id for handling once writes to it settle. Only creates,
// writes and renames onto valid incident file names count.
func (w *Watcher) observe(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	id, ok := store.IncidentIDFromPath(ev.Name)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		select {
		case w.ready <- id:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) handle(ctx context.Context, id string) {
	inc, err := w.loader.GetIncident(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("failed to load incident", zap.String("id", id), zap.Error(err))
		}
		return
	}
	if inc.Patternized {
		return
	}

	p, err := w.trigger.MaybeExtract(ctx, inc)
	if err != nil {
		w.logger.Warn("auto extraction failed", zap.String("id", id), zap.Error(err))
	}
	if p == nil {
		return
	}
	w.logger.Info("pattern extracted from watched incident",
		zap.String("incident", id),
		zap.String("pattern", p.ID))
	if w.onPattern != nil {
		w.onPattern(p)
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()
	_ = w.fsw.Close()
}
