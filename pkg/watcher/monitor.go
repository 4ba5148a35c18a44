package watcher

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/metrics"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

type resumePoint struct {
	id uint64
	at time.Time
}

// Monitor owns one notification stream and keeps it in line with its
// Config. Start, Stop and Configure call into the OS and may block; never
// call them from a callback of the same monitor.
//
// Failures are not returned. A monitor that could not bring its stream up
// reports IsActive() == false and LastError() explains why.
type Monitor struct {
	mu        sync.Mutex
	svc       Service
	cfg       Config
	callbacks []func([]model.EventRecord)

	logger       *log.Logger
	metrics      *metrics.Recorder
	invalidation *Invalidation

	active   atomic.Bool
	state    atomic.Int32
	stream   Stream
	handle   *handle
	resume   *resumePoint
	lastErr  error
	// current is the handle of the newest stream, kept after teardown so
	// its position stays readable.
	current atomic.Pointer[handle]
}

func NewMonitor(svc Service, paths []string, options ...Option) *Monitor {
	m := &Monitor{
		svc:          svc,
		cfg:          DefaultConfig(paths...),
		logger:       log.New(io.Discard, "", 0),
		invalidation: ProcessInvalidation(),
	}

	for _, op := range options {
		op(m)
	}
	m.cfg = m.cfg.normalize()

	return m
}

func (m *Monitor) IsActive() bool { return m.active.Load() }

func (m *Monitor) State() State { return State(m.state.Load()) }

// Config returns a copy of the current configuration.
func (m *Monitor) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.normalize()
}

func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Position returns the newest record the latest stream of this monitor has
// seen, whether or not it was delivered. A new stream starts without one.
func (m *Monitor) Position() (model.EventRecord, bool) {
	h := m.current.Load()
	if h == nil {
		return model.EventRecord{}, false
	}
	p := h.position.Load()
	if p == nil {
		return model.EventRecord{}, false
	}
	return *p, true
}

// Start begins monitoring from now. Starting a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active.Store(true)
	if m.State() != Stopped {
		return
	}
	m.resume = nil
	m.bringUp()
}

// StartFrom resumes after event. The event is only trusted when it was
// captured after the last event id wrap; otherwise monitoring starts from
// now. A running stream is recreated.
func (m *Monitor) StartFrom(event model.EventRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active.Store(true)
	m.resume = &resumePoint{id: event.ID, at: event.CapturedAt}
	m.teardown()
	m.bringUp()
}

// StartSince resumes from the last event each watched device recorded
// before t, taking the earliest across devices.
func (m *Monitor) StartSince(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active.Store(true)
	m.resume = m.resolveSince(t)
	m.teardown()
	m.bringUp()
}

// Stop tears the stream down. It is safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active.Store(false)
	m.teardown()
}

func (m *Monitor) Close() error {
	m.Stop()
	return nil
}

// Configure replaces the configuration. An active monitor recreates its
// stream with the new settings; an inactive one only stores them.
func (m *Monitor) Configure(cfg Config, opts ...ConfigureOption) {
	co := configureOptions{}
	for _, op := range opts {
		op(&co)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg = cfg.normalize()
	if co.keepPosition {
		if pos, ok := m.Position(); ok {
			m.resume = &resumePoint{id: pos.ID, at: pos.CapturedAt}
		}
	} else {
		m.resume = nil
	}

	if !m.active.Load() {
		return
	}

	wasRunning := m.State() == Running
	m.teardown()
	m.bringUp()
	if wasRunning {
		m.metrics.Restarted()
		m.logger.Printf("watcher :: stream restarted with new configuration, active=%v\n", m.active.Load())
	}
}

func (m *Monitor) precondition() error {
	switch {
	case len(m.cfg.Paths) == 0:
		return ErrNoPaths
	case len(m.callbacks) == 0:
		return ErrNoTarget
	case m.cfg.Actions.IsEmpty():
		return ErrNoActions
	}
	return nil
}

// bringUp must be called with mu held and no stream allocated.
func (m *Monitor) bringUp() {
	m.current.Store(nil)
	if err := m.precondition(); err != nil {
		m.fail(err)
		return
	}

	m.state.Store(int32(Starting))

	since := SinceNow
	if m.resume != nil {
		if m.invalidation.Valid(m.resume.at) {
			since = m.resume.id
		} else {
			m.logger.Printf("watcher :: resume point %d predates the last event id wrap, starting from now\n", m.resume.id)
			m.resume = nil
		}
	}

	p := newPipeline(m.cfg, m.invalidation, m.metrics, since != SinceNow)
	h := newHandle(p, m.deliver)

	spec := StreamSpec{
		Paths:   m.cfg.Paths,
		Since:   since,
		Latency: m.cfg.latency(),
		Flags:   m.cfg.createFlags(),
	}
	stream, err := m.svc.CreateStream(spec, dispatch(h.id))
	if err != nil {
		h.invalidate()
		h.release()
		m.fail(errors.Join(ErrStreamCreate, err))
		return
	}
	m.stream, m.handle = stream, h
	m.current.Store(h)

	if len(m.cfg.Exclude) > 0 {
		if err := stream.SetExclusionPaths(m.cfg.Exclude); err != nil {
			// the pipeline filters excluded paths as well
			m.logger.Printf("watcher :: exclusion paths not registered with the stream: %v\n", err)
		}
	}
	stream.SetQueue(m.cfg.Queue)

	if err := stream.Start(); err != nil {
		m.teardown()
		m.fail(errors.Join(ErrStreamStart, err))
		return
	}

	m.lastErr = nil
	m.state.Store(int32(Running))
	m.metrics.Running(true)
	if since == SinceNow {
		m.logger.Printf("watcher :: stream running on %d paths since now\n", len(spec.Paths))
	} else {
		m.logger.Printf("watcher :: stream running on %d paths since event %d\n", len(spec.Paths), since)
	}
}

// teardown is idempotent. The handle is released last so a callback still
// in flight keeps its context.
func (m *Monitor) teardown() {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Invalidate()
		m.handle.invalidate()
		m.stream.Release()
		m.handle.release()
		m.stream, m.handle = nil, nil
		m.metrics.Running(false)
		m.logger.Printf("watcher :: stream torn down\n")
	}
	m.state.Store(int32(Stopped))
}

func (m *Monitor) fail(err error) {
	m.lastErr = err
	m.active.Store(false)
	m.state.Store(int32(Stopped))
	m.metrics.StartFailed()
	m.logger.Printf("watcher error :: %v\n", err)
}

func (m *Monitor) resolveSince(t time.Time) *resumePoint {
	seen := make(map[int32]struct{})
	var earliest uint64
	found := false

	for _, path := range m.cfg.Paths {
		dev, err := m.svc.DeviceForPath(path)
		if err != nil {
			m.logger.Printf("watcher error :: %v\n", errors.Join(ErrDeviceLookup, err))
			continue
		}
		if _, ok := seen[dev]; ok {
			continue
		}
		seen[dev] = struct{}{}

		id, err := m.svc.LastEventIDBefore(dev, t)
		if err != nil {
			m.logger.Printf("watcher error :: %v\n", errors.Join(ErrDeviceLookup, err))
			continue
		}
		if !found || id < earliest {
			earliest, found = id, true
		}
	}

	if !found {
		m.logger.Printf("watcher :: no device resolved an event before %s, starting from now\n", t.Format(time.RFC3339))
		return nil
	}
	return &resumePoint{id: earliest, at: t}
}

func (m *Monitor) deliver(records []model.EventRecord) {
	for _, hook := range m.callbacks {
		hook(records)
	}
}
