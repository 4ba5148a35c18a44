package watcher

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/metrics"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

// Services only ever see a handle id; the handle itself lives in this
// registry until the last reference is released.
var (
	handles      = xsync.NewMapOf[uint64, *handle]()
	lastHandleID atomic.Uint64
)

// handle is the context of one stream. The stream owns one reference and
// every delivery in flight owns another, so a batch that is still running
// keeps its pipeline and callbacks alive after teardown.
type handle struct {
	id          uint64
	refs        atomic.Int64
	invalidated atomic.Bool
	drained     chan struct{}

	pipeline *pipeline
	deliver  func([]model.EventRecord)
	// position is the newest record this stream has seen.
	position atomic.Pointer[model.EventRecord]
}

func newHandle(p *pipeline, deliver func([]model.EventRecord)) *handle {
	h := &handle{
		id:       lastHandleID.Add(1),
		drained:  make(chan struct{}),
		pipeline: p,
		deliver:  deliver,
	}
	h.refs.Store(1)
	handles.Store(h.id, h)
	return h
}

func (h *handle) acquire() bool {
	for {
		n := h.refs.Load()
		if n <= 0 || h.invalidated.Load() {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (h *handle) release() {
	if h.refs.Add(-1) == 0 {
		handles.Delete(h.id)
		close(h.drained)
	}
}

func (h *handle) invalidate() { h.invalidated.Store(true) }

// dispatch is what the service calls back into. It only captures the id.
func dispatch(id uint64) DeliverFunc {
	return func(batch []RawRecord) {
		h, ok := handles.Load(id)
		if !ok || !h.acquire() {
			if ok {
				for range batch {
					h.pipeline.metrics.Dropped(metrics.ReasonStale)
				}
			}
			return
		}
		defer h.release()
		h.run(batch)
	}
}

func (h *handle) run(batch []RawRecord) {
	// captured before Process so a wrap in this batch invalidates it
	if n := len(batch); n > 0 && batch[n-1].ID != 0 {
		last := model.Build(batch[n-1].ID, batch[n-1].Path, batch[n-1].Flags, nil, nil)
		h.advance(&last)
	}
	records := h.pipeline.Process(batch)
	if len(records) > 0 {
		h.deliver(records)
	}
}

// advance moves the position forward. Batches finishing out of order on a
// concurrent queue never move it back, unless the stored record predates
// an event id wrap.
func (h *handle) advance(e *model.EventRecord) {
	for {
		cur := h.position.Load()
		if cur != nil && cur.ID >= e.ID && h.pipeline.invalidation.Valid(cur.CapturedAt) {
			return
		}
		if h.position.CompareAndSwap(cur, e) {
			return
		}
	}
}
