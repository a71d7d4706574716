package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seq       atomic.Uint64
	spanIDs   atomic.Uint64
	lanes     atomic.Uint64
	openSpans atomic.Int64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 { return seq.Add(1) }

// OpenSpans is the number of spans begun and not yet ended.
func OpenSpans() int64 { return openSpans.Load() }

type tracerKey struct{}
type spanKey struct{}

// spanRef is what a context carries about its innermost span.
type spanRef struct {
	id   uint64
	lane uint64
}

// FromContext extracts the Tracer from ctx, Nop if there is none.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches t to ctx.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// Span is one begin/end pair. The zero Span and spans of a disabled
// tracer are inert.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	lane    uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// StartSpan begins a span under the one ctx carries and returns a context
// carrying the new span. Unit spans open their own lane so concurrent
// units render on separate rows.
func StartSpan(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return ctx, &Span{}
	}
	var parent spanRef
	if ctx != nil {
		parent, _ = ctx.Value(spanKey{}).(spanRef)
	}
	lane := parent.lane
	if lane == 0 || scope == ScopeUnit {
		lane = lanes.Add(1)
	}
	s := &Span{
		tracer:  t,
		id:      spanIDs.Add(1),
		parent:  parent.id,
		lane:    lane,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	openSpans.Add(1)
	t.Emit(&Event{
		Time:     s.started,
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Lane:     lane,
		Name:     name,
	})
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanKey{}, spanRef{id: s.id, lane: lane}), s
}

// End emits the end event and returns the span duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.tracer == nil {
		return 0
	}
	dur := time.Since(s.started)
	openSpans.Add(-1)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Lane:     s.lane,
		Name:     s.name,
		Detail:   detail,
		Elapsed:  dur,
		Extra:    s.extra,
	})
	s.tracer = nil
	return dur
}

// WithExtra adds a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.tracer == nil {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID is 0 for inert spans.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point emits an instant event under the span ctx carries.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	parent, _ := ctx.Value(spanKey{}).(spanRef)
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent.id,
		Lane:     parent.lane,
		Name:     name,
		Detail:   detail,
	})
}
