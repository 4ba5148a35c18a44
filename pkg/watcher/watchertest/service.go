// Package watchertest provides an in-memory notification service for
// exercising watcher.Monitor without FSEvents.
package watchertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/watcher"
)

// Service records every stream it creates. Fields configure failures and
// device lookups; set them before the monitor uses the service.
type Service struct {
	CreateErr error
	StartErr  error

	// Devices maps a watched path to its device; missing paths fail.
	Devices map[string]int32
	// History maps a device to the id LastEventIDBefore returns; missing
	// devices fail.
	History map[int32]uint64

	mu      sync.Mutex
	streams []*Stream
	lookups []int32
}

func NewService() *Service {
	return &Service{
		Devices: make(map[string]int32),
		History: make(map[int32]uint64),
	}
}

func (s *Service) CreateStream(spec watcher.StreamSpec, deliver watcher.DeliverFunc) (watcher.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return nil, s.CreateErr
	}

	st := &Stream{
		Spec:     spec,
		deliver:  deliver,
		startErr: s.StartErr,
	}
	s.streams = append(s.streams, st)
	return st, nil
}

func (s *Service) DeviceForPath(path string) (int32, error) {
	dev, ok := s.Devices[path]
	if !ok {
		return 0, fmt.Errorf("stat %s: no such file or directory", path)
	}
	return dev, nil
}

func (s *Service) LastEventIDBefore(dev int32, _ time.Time) (uint64, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, dev)
	s.mu.Unlock()

	id, ok := s.History[dev]
	if !ok {
		return 0, fmt.Errorf("no history for device %d", dev)
	}
	return id, nil
}

// Streams returns every stream created so far, oldest first.
func (s *Service) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Stream(nil), s.streams...)
}

// Last returns the newest stream or nil.
func (s *Service) Last() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

// Lookups returns the devices LastEventIDBefore was asked about.
func (s *Service) Lookups() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32(nil), s.lookups...)
}

type Stream struct {
	Spec watcher.StreamSpec

	mu          sync.Mutex
	deliver     watcher.DeliverFunc
	queue       watcher.Queue
	exclusions  []string
	startErr    error
	started     bool
	stopped     bool
	invalidated bool
	released    bool
}

func (st *Stream) SetExclusionPaths(paths []string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.exclusions = append([]string(nil), paths...)
	return nil
}

func (st *Stream) SetQueue(q watcher.Queue) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.queue = q
}

func (st *Stream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.startErr != nil {
		return st.startErr
	}
	st.started = true
	return nil
}

func (st *Stream) Stop() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.started {
		st.stopped = true
	}
}

func (st *Stream) Invalidate() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.invalidated = true
}

func (st *Stream) Release() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.released = true
}

// Emit delivers a batch through the bound queue the way the OS would: only
// while the stream is started and not yet invalidated.
func (st *Stream) Emit(records ...watcher.RawRecord) bool {
	st.mu.Lock()
	live := st.started && !st.stopped && !st.invalidated
	q, deliver := st.queue, st.deliver
	st.mu.Unlock()

	if !live {
		return false
	}
	if q == nil {
		q = watcher.Inline
	}
	q.Async(func() { deliver(records) })
	return true
}

// Inject calls the delivery function regardless of the stream state,
// simulating a callback that raced with teardown.
func (st *Stream) Inject(records ...watcher.RawRecord) {
	st.mu.Lock()
	deliver := st.deliver
	st.mu.Unlock()
	deliver(records)
}

func (st *Stream) Started() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.started
}

// TornDown reports whether the stream went through invalidate and release.
func (st *Stream) TornDown() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.invalidated && st.released
}

func (st *Stream) Exclusions() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.exclusions...)
}

// Rec is shorthand for a raw record.
func Rec(id uint64, path string, flags model.FlagSet) watcher.RawRecord {
	return watcher.RawRecord{ID: id, Path: path, Flags: flags}
}
