package pkg

import (
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors often write a file in several steps; changes closer together
// than this are reloaded once.
const reloadSettle = 100 * time.Millisecond

type ReloadOption func(w *ConfigWatcher)

// WithReloadFunction registers a hook called with every successfully parsed
// new config. Hooks run on the watcher goroutine, one at a time.
func WithReloadFunction(hook func(cfg *Config)) ReloadOption {
	return func(w *ConfigWatcher) {
		w.hooks = append(w.hooks, hook)
	}
}

func WithReloadLogger(lg *log.Logger) ReloadOption {
	return func(w *ConfigWatcher) {
		w.lg = lg
	}
}

func WithSettleTime(d time.Duration) ReloadOption {
	return func(w *ConfigWatcher) {
		w.settle = d
	}
}

// ConfigWatcher reloads a config file when it changes on disk. The parent
// directory is watched so rename based saves are seen too.
type ConfigWatcher struct {
	fw     *fsnotify.Watcher
	file   string
	hooks  []func(cfg *Config)
	lg     *log.Logger
	settle time.Duration
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewConfigWatcher(file string, options ...ReloadOption) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := ConfigWatcher{
		fw:     fw,
		file:   abs,
		lg:     log.New(io.Discard, "", 0),
		settle: reloadSettle,
		closed: make(chan struct{}),
	}
	for _, op := range options {
		op(&w)
	}

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.run()

	return &w, nil
}

func (w *ConfigWatcher) relevant(e fsnotify.Event) bool {
	if filepath.Clean(e.Name) != w.file {
		return false
	}
	return e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *ConfigWatcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case e, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.relevant(e) {
				timer.Reset(w.settle)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.lg.Printf("config error :: watching %s: %v\n", w.file, err)
		case <-timer.C:
			w.reload()
		case <-w.closed:
			return
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := ReadConfig(w.file)
	if err != nil {
		// keep running with the previous config
		w.lg.Printf("config error :: reload of %s rejected: %v\n", w.file, err)
		return
	}

	w.lg.Printf("config :: reloaded %s\n", w.file)
	for _, hook := range w.hooks {
		hook(cfg)
	}
}

func (w *ConfigWatcher) Close() {
	w.once.Do(func() {
		close(w.closed)
		_ = w.fw.Close()
	})
	w.wg.Wait()
}
