package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat emits periodic events carrying the number of open spans. A run
// of heartbeats with the same count and no span ends in between points at
// a stuck stage or unit.
type Heartbeat struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

// StartHeartbeat starts emitting to tracer every interval. It returns nil
// when tracing is disabled or interval is not positive; Stop on nil is a
// no-op.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for beat := 1; ; beat++ {
			select {
			case <-h.stop:
				return
			case now := <-ticker.C:
				tracer.Emit(&Event{
					Time:   now,
					Kind:   KindHeartbeat,
					Scope:  ScopeCommand,
					Name:   "heartbeat",
					Detail: fmt.Sprintf("#%d open=%d", beat, OpenSpans()),
				})
			}
		}
	}()
	return h
}

// Stop ends the heartbeat goroutine and waits for it.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
