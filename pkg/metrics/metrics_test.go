package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	r := m.For("docs")

	r.Received(3)
	r.Delivered(2)
	r.Dropped(ReasonScope)
	r.Dropped(ReasonScope)
	r.Wrapped()
	r.Running(true)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.received.WithLabelValues("docs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.delivered.WithLabelValues("docs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dropped.WithLabelValues("docs", ReasonScope)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wraps.WithLabelValues("docs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active.WithLabelValues("docs")))

	r.Running(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active.WithLabelValues("docs")))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Received(1)
		r.Delivered(1)
		r.Dropped(ReasonSelf)
		r.Restarted()
		r.StartFailed()
		r.Wrapped()
		r.Running(true)
	})
}
