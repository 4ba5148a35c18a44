package watcher

import (
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/metrics"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

// pipeline turns raw batches into the records a caller sees. Its config is
// a snapshot taken when the stream came up; the only shared state it
// touches is the invalidation cell.
type pipeline struct {
	actions     model.Actions
	root        bool
	descendants bool
	ignoreSelf  bool
	watched     map[string]struct{}
	exclude     []string
	predicate   func(model.EventRecord) bool

	invalidation *Invalidation
	metrics      *metrics.Recorder

	// replaying is true until the stream reports historyDone.
	replaying atomic.Bool
}

func newPipeline(cfg Config, inv *Invalidation, rec *metrics.Recorder, replaying bool) *pipeline {
	p := &pipeline{
		actions:      cfg.Actions,
		root:         cfg.Root,
		descendants:  cfg.Descendants,
		ignoreSelf:   cfg.IgnoreSelf,
		watched:      make(map[string]struct{}, len(cfg.Paths)),
		predicate:    cfg.Predicate,
		invalidation: inv,
		metrics:      rec,
	}
	for _, path := range cfg.Paths {
		p.watched[cleanPath(path)] = struct{}{}
	}
	for _, path := range cfg.Exclude {
		p.exclude = append(p.exclude, cleanPath(path))
	}
	p.replaying.Store(replaying)
	return p
}

func (p *pipeline) Process(batch []RawRecord) []model.EventRecord {
	p.metrics.Received(len(batch))

	records := make([]model.EventRecord, len(batch))
	wrapped := false
	for i, raw := range batch {
		records[i] = model.Build(raw.ID, raw.Path, raw.Flags, raw.FileID, raw.DocumentID)
		if records[i].Control.Has(model.ControlIDsWrapped) {
			wrapped = true
		}
	}

	// must happen before anything is dropped
	if wrapped {
		p.invalidation.Observe(time.Now())
		p.metrics.Wrapped()
	}

	out := records[:0]
	for _, e := range records {
		replay := p.replaying.Load()
		if e.Control.Has(model.ControlHistoryDone) {
			p.replaying.Store(false)
		}

		if reason, drop := p.drop(e, replay); drop {
			p.metrics.Dropped(reason)
			continue
		}
		out = append(out, e)
	}

	p.metrics.Delivered(len(out))
	return out
}

func (p *pipeline) drop(e model.EventRecord, replay bool) (string, bool) {
	if e.Actions.IsEmpty() && e.Control.Intersects(model.ControlNoise) {
		return metrics.ReasonControl, true
	}

	if p.excluded(e.TrimmedPath()) {
		return metrics.ReasonExcluded, true
	}

	if p.actions&model.AllActions != model.AllActions && !e.Actions.Intersects(p.actions) {
		return metrics.ReasonAction, true
	}

	if !p.descendants {
		exempt := p.root && e.Has(model.ActionRootChanged)
		if _, ok := p.watched[e.TrimmedPath()]; !ok && !exempt {
			return metrics.ReasonScope, true
		}
	}

	// historical events keep their self marker
	if p.ignoreSelf && !replay && e.Control.Has(model.ControlOwnEvent) {
		return metrics.ReasonSelf, true
	}

	if p.predicate != nil && !p.predicate(e) {
		return metrics.ReasonPredicate, true
	}

	return "", false
}

func (p *pipeline) excluded(path string) bool {
	for _, ex := range p.exclude {
		if path == ex || strings.HasPrefix(path, strings.TrimSuffix(ex, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// cleanPath canonicalizes a configured path so it matches what the service
// reports.
func cleanPath(p string) string {
	if p == "" {
		return p
	}
	if resolved, err := model.RealPath(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}
