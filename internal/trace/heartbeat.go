package trace

import (
	"sync"
	"time"
)

// Heartbeat emits a driver-scope tick at a fixed interval so a stuck run
// shows up in the trace as ticks with no span ends between them.
type Heartbeat struct {
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartHeartbeat starts ticking into t. It returns nil when t is disabled
// or interval is not positive; Stop on nil is a no-op.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if !enabled(t) || interval <= 0 {
		return nil
	}
	h := &Heartbeat{done: make(chan struct{})}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case now := <-ticker.C:
				t.Emit(&Event{
					Time:   now,
					Kind:   KindHeartbeat,
					Scope:  ScopeDriver,
					Name:   "heartbeat",
					Detail: now.Sub(start).Round(time.Millisecond).String(),
				})
			case <-h.done:
				return
			}
		}
	}()
	return h
}

// Stop ends the ticker and waits for the goroutine to exit.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.done) })
	h.wg.Wait()
}
