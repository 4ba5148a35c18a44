package watcher

import (
	"sync/atomic"
	"time"
)

// Invalidation remembers when an event id wrap was last observed. Event
// ids issued before that instant are not usable as resume points.
//
// Wraps are a device level phenomenon, so every monitor in the process
// shares ProcessInvalidation unless one is injected with WithInvalidation.
// The zero value is unset.
type Invalidation struct {
	last atomic.Int64 // unix nanoseconds, 0 while unset
}

var processInvalidation Invalidation

func ProcessInvalidation() *Invalidation { return &processInvalidation }

// Observe moves the timestamp forward to t. It never moves backwards.
func (inv *Invalidation) Observe(t time.Time) {
	n := t.UnixNano()
	for {
		cur := inv.last.Load()
		if cur >= n {
			return
		}
		if inv.last.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (inv *Invalidation) Last() (time.Time, bool) {
	n := inv.last.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// Valid reports whether something captured at t is newer than the last wrap.
func (inv *Invalidation) Valid(t time.Time) bool {
	n := inv.last.Load()
	return n == 0 || t.UnixNano() > n
}
