//go:build darwin && cgo

package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsevents"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

// The fsevents callback blocks on this channel, keep some room.
const backendBuffer = 64

type systemService struct{}

// NewSystemService returns the FSEvents backed service.
func NewSystemService() Service { return systemService{} }

func (systemService) CreateStream(spec StreamSpec, deliver DeliverFunc) (Stream, error) {
	if len(spec.Paths) == 0 {
		return nil, ErrNoPaths
	}

	es := &fsevents.EventStream{
		Events:  make(chan []fsevents.Event, backendBuffer),
		Paths:   append([]string(nil), spec.Paths...),
		Flags:   fsevents.CreateFlags(spec.Flags),
		Latency: spec.Latency,
	}
	if spec.Since != SinceNow {
		es.Resume = true
		es.EventID = spec.Since
	}

	return &systemStream{
		es:      es,
		deliver: deliver,
		queue:   Inline,
		done:    make(chan struct{}),
	}, nil
}

func (systemService) DeviceForPath(path string) (int32, error) {
	return fsevents.DeviceForPath(path)
}

func (systemService) LastEventIDBefore(dev int32, before time.Time) (uint64, error) {
	id := fsevents.EventIDForDeviceBeforeTime(dev, before)
	if id == 0 {
		return 0, fmt.Errorf("device %d has no event before %s", dev, before.Format(time.RFC3339))
	}
	return id, nil
}

type systemStream struct {
	es      *fsevents.EventStream
	deliver DeliverFunc
	queue   Queue

	mu      sync.Mutex
	started bool
	once    sync.Once
	done    chan struct{}
	wg      sync.WaitGroup
}

// SetExclusionPaths is not exposed by the fsevents binding.
func (s *systemStream) SetExclusionPaths([]string) error { return ErrNoExclusions }

func (s *systemStream) SetQueue(q Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = q
}

func (s *systemStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.es.Start(); err != nil {
		return err
	}
	s.started = true

	s.wg.Add(1)
	go s.loop(s.es.Events, s.queue, s.deliver)
	return nil
}

func (s *systemStream) loop(in <-chan []fsevents.Event, q Queue, deliver DeliverFunc) {
	defer s.wg.Done()
	for {
		select {
		case events := <-in:
			batch := make([]RawRecord, len(events))
			for i, ev := range events {
				batch[i] = RawRecord{
					ID:    ev.ID,
					Path:  ev.Path,
					Flags: model.FlagSet(ev.Flags),
				}
			}
			q.Async(func() { deliver(batch) })
		case <-s.done:
			return
		}
	}
}

func (s *systemStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && s.es != nil {
		s.es.Stop()
		s.started = false
	}
}

// Invalidate ends the delivery loop and waits for it to return.
func (s *systemStream) Invalidate() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Release drops the references to the binding and the callback.
func (s *systemStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.es = nil
	s.deliver = nil
}
