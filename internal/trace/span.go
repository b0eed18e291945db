package trace

import (
	"sync/atomic"
	"time"
)

var spanIDs atomic.Uint64

// Span is an open begin/end pair. A nil or disabled span ignores every
// call, so callers never check the level themselves.
type Span struct {
	t      Tracer
	id     uint64
	parent uint64
	scope  Scope
	name   string
	start  time.Time
	attrs  map[string]string
}

// Begin opens a span under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !enabled(t) || !t.Level().Admits(KindBegin, scope) {
		return nil
	}
	s := &Span{
		t:      t,
		id:     spanIDs.Add(1),
		parent: parent,
		scope:  scope,
		name:   name,
		start:  time.Now(),
	}
	t.Emit(&Event{Time: s.start, Kind: KindBegin, Scope: scope, Span: s.id, Parent: parent, Name: name})
	return s
}

// Set attaches an attribute reported on the end event.
func (s *Span) Set(key, value string) *Span {
	if s == nil {
		return nil
	}
	if s.attrs == nil {
		s.attrs = make(map[string]string)
	}
	s.attrs[key] = value
	return s
}

// End closes the span and returns its duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil {
		return 0
	}
	now := time.Now()
	s.t.Emit(&Event{
		Time:   now,
		Kind:   KindEnd,
		Scope:  s.scope,
		Span:   s.id,
		Parent: s.parent,
		Name:   s.name,
		Detail: detail,
		Attrs:  s.attrs,
	})
	return now.Sub(s.start)
}

// ID returns the span ID, 0 for a disabled span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point records an instant event under parent.
func Point(t Tracer, scope Scope, name, detail string, parent uint64) {
	if !enabled(t) || !t.Level().Admits(KindPoint, scope) {
		return
	}
	t.Emit(&Event{Time: time.Now(), Kind: KindPoint, Scope: scope, Parent: parent, Name: name, Detail: detail})
}

// Fail records a failure of the named unit. Failures are kept at every
// level except off.
func Fail(t Tracer, scope Scope, name string, err error, parent uint64) {
	if !enabled(t) || err == nil {
		return
	}
	t.Emit(&Event{Time: time.Now(), Kind: KindFailure, Scope: scope, Parent: parent, Name: name, Detail: err.Error()})
}
