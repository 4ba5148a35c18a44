package watcher

import (
	"log"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/metrics"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

// MonitorOptions select scope and delivery behaviour.
type MonitorOptions struct {
	// Root also reports changes to the watched path itself or its parents.
	Root bool
	// Descendants reports events below the watched paths; when false only
	// records for the watched paths themselves are delivered.
	Descendants bool
	// IgnoreSelf drops live events caused by this process. Events replayed
	// from history are always delivered.
	IgnoreSelf bool
	// NoDefer delivers the first event after a quiet period immediately
	// instead of waiting for the latency to expire.
	NoDefer bool
}

// Config is the part of a monitor that Configure can change.
type Config struct {
	Paths   []string
	Exclude []string
	Actions model.Actions
	MonitorOptions
	// Latency is the coalescing delay in seconds.
	Latency   float64
	Queue     Queue
	Predicate func(model.EventRecord) bool
}

func DefaultConfig(paths ...string) Config {
	return Config{
		Paths:          paths,
		Actions:        model.AllActions,
		MonitorOptions: MonitorOptions{Descendants: true},
	}
}

func (c Config) normalize() Config {
	if c.Latency < 0 {
		c.Latency = 0
	}
	if c.Queue == nil {
		c.Queue = Inline
	}
	c.Paths = append([]string(nil), c.Paths...)
	c.Exclude = append([]string(nil), c.Exclude...)
	return c
}

func (c Config) latency() time.Duration {
	return time.Duration(c.Latency * float64(time.Second))
}

// createFlags always asks for file level events. Self filtering is done in
// the pipeline so the OS only marks own events.
func (c Config) createFlags() CreateFlags {
	f := CreateFileEvents
	if c.Root {
		f |= CreateWatchRoot
	}
	if c.NoDefer {
		f |= CreateNoDefer
	}
	if c.IgnoreSelf {
		f |= CreateMarkSelf
	}
	return f
}

type Option func(m *Monitor)

// WithCallbackFunction registers a delivery target. Several may be set;
// they run in registration order on the configured queue.
func WithCallbackFunction(hook func(records []model.EventRecord)) Option {
	return func(m *Monitor) {
		m.callbacks = append(m.callbacks, hook)
	}
}

func WithActions(a model.Actions) Option {
	return func(m *Monitor) {
		m.cfg.Actions = a
	}
}

func WithQueue(q Queue) Option {
	return func(m *Monitor) {
		m.cfg.Queue = q
	}
}

func WithExclude(paths ...string) Option {
	return func(m *Monitor) {
		m.cfg.Exclude = append(m.cfg.Exclude, paths...)
	}
}

func WithLatency(seconds float64) Option {
	return func(m *Monitor) {
		m.cfg.Latency = seconds
	}
}

func WithMonitorOptions(o MonitorOptions) Option {
	return func(m *Monitor) {
		m.cfg.MonitorOptions = o
	}
}

func WithPredicate(fn func(model.EventRecord) bool) Option {
	return func(m *Monitor) {
		m.cfg.Predicate = fn
	}
}

func WithLogger(lg *log.Logger) Option {
	return func(m *Monitor) {
		m.logger = lg
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Monitor) {
		m.metrics = r
	}
}

func WithInvalidation(inv *Invalidation) Option {
	return func(m *Monitor) {
		m.invalidation = inv
	}
}

type configureOptions struct {
	keepPosition bool
}

type ConfigureOption func(o *configureOptions)

// KeepPosition makes a restart resume after the last event the old stream
// saw, instead of starting from now.
func KeepPosition() ConfigureOption {
	return func(o *configureOptions) {
		o.keepPosition = true
	}
}
