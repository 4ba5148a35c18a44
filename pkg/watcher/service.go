package watcher

import (
	"math"
	"sync"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

// SinceNow asks the service for events from the moment the stream starts.
const SinceNow uint64 = math.MaxUint64

// CreateFlags are the stream creation flags understood by FSEvents.
type CreateFlags uint32

const (
	CreateNoDefer    CreateFlags = 0x00000002
	CreateWatchRoot  CreateFlags = 0x00000004
	CreateIgnoreSelf CreateFlags = 0x00000008
	CreateFileEvents CreateFlags = 0x00000010
	CreateMarkSelf   CreateFlags = 0x00000020
)

// StreamSpec is everything a service needs to allocate a stream.
type StreamSpec struct {
	Paths   []string
	Since   uint64
	Latency time.Duration
	Flags   CreateFlags
}

// RawRecord is one undecoded record as the service hands it over.
type RawRecord struct {
	ID         uint64
	Path       string
	Flags      model.FlagSet
	FileID     *uint64
	DocumentID *int64
}

// DeliverFunc receives one batch. Services call it through the queue set
// with Stream.SetQueue.
type DeliverFunc func(batch []RawRecord)

// Stream mirrors the FSEvents stream life cycle: create, bind a queue,
// start, stop, invalidate, release.
type Stream interface {
	SetExclusionPaths(paths []string) error
	SetQueue(q Queue)
	Start() error
	Stop()
	Invalidate()
	Release()
}

// Service is the host notification service together with the two lookups
// needed to resume from a point in time.
type Service interface {
	CreateStream(spec StreamSpec, deliver DeliverFunc) (Stream, error)
	DeviceForPath(path string) (int32, error)
	LastEventIDBefore(dev int32, before time.Time) (uint64, error)
}

// Queue runs delivery callbacks. It may be serial or concurrent; the
// filter pipeline does not rely on either.
type Queue interface {
	Async(fn func())
}

type inlineQueue struct{}

func (inlineQueue) Async(fn func()) { fn() }

// Inline runs callbacks on the goroutine the service delivers on.
var Inline Queue = inlineQueue{}

// SerialQueue runs callbacks one at a time on its own goroutine.
type SerialQueue struct {
	fns    chan func()
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewSerialQueue(bufferSize int) *SerialQueue {
	q := &SerialQueue{
		fns:    make(chan func(), bufferSize),
		closed: make(chan struct{}),
	}

	q.wg.Add(1)
	go q.run()

	return q
}

func (q *SerialQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case fn := <-q.fns:
			fn()
		case <-q.closed:
			return
		}
	}
}

// Async enqueues fn. After Close it is a no-op.
func (q *SerialQueue) Async(fn func()) {
	select {
	case <-q.closed:
		return
	default:
	}

	select {
	case q.fns <- fn:
	case <-q.closed:
	}
}

// Close stops the queue goroutine and drops work still pending.
func (q *SerialQueue) Close() {
	q.once.Do(func() { close(q.closed) })
	q.wg.Wait()
}
