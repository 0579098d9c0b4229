package rulebook

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/scholar/errors"
)

// ReloadCallback receives a freshly compiled model after the rulebook file changed.
type ReloadCallback func(*Model)

// Watcher recompiles a rulebook file when it changes on disk. Edits that
// fail to parse or build are logged and the previous model stays active.
type Watcher struct {
	path     string
	settings Settings
	watcher  *fsnotify.Watcher
	logger   *zap.SugaredLogger
	onReload ReloadCallback

	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	started        bool
	done           chan struct{}
}

// NewWatcher watches the directory holding path, since editors often
// replace files by rename rather than writing in place.
func NewWatcher(path string, settings Settings, logger *zap.SugaredLogger, onReload ReloadCallback) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve rulebook path %s", path)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch rulebook directory for %s", abs)
	}

	return &Watcher{
		path:           abs,
		settings:       settings,
		watcher:        fw,
		logger:         logger,
		onReload:       onReload,
		debouncePeriod: 300 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// SetDebounce overrides the quiet period before a change is reloaded.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debouncePeriod = d
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.watchLoop()
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugw("Rulebook change detected", "file", event.Name, "op", event.Op.String())
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Rulebook watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.reload(); err != nil {
			w.logger.Errorw("Rulebook reload failed, keeping previous model",
				"path", w.path,
				"error", err)
		}
	})
}

func (w *Watcher) reload() error {
	f, err := Load(w.path)
	if err != nil {
		return err
	}
	m, err := Build(f, w.settings, w.path)
	if err != nil {
		return err
	}
	w.logger.Infow("Rulebook reloaded",
		"path", w.path,
		"name", m.Name,
		"version", m.Version,
		"rules", len(f.Rules))
	w.onReload(m)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	started := w.started
	w.mu.Unlock()

	err := w.watcher.Close()
	if started {
		<-w.done
	}
	return err
}
