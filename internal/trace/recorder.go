package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Recorder keeps the most recent events in a fixed-size ring. When the run
// fails the CLI prints the tail; with an output configured the whole ring
// is written there on Close.
type Recorder struct {
	mu    sync.Mutex
	ring  []Event
	start int // oldest event
	n     int
	level Level

	sink   io.Writer
	format Format
}

// NewRecorder returns a recorder holding up to size events.
func NewRecorder(size int, level Level) *Recorder {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Recorder{ring: make([]Event, size), level: level}
}

func (r *Recorder) Emit(ev *Event) {
	if !r.level.Admits(ev.Kind, ev.Scope) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = nextSeq()
	if r.n < len(r.ring) {
		r.ring[(r.start+r.n)%len(r.ring)] = *ev
		r.n++
		return
	}
	r.ring[r.start] = *ev
	r.start = (r.start + 1) % len(r.ring)
}

// Tail returns up to n of the newest events, oldest first. n <= 0 returns
// everything held.
func (r *Recorder) Tail(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.n {
		n = r.n
	}
	out := make([]Event, n)
	first := r.start + r.n - n
	for i := range out {
		out[i] = r.ring[(first+i)%len(r.ring)]
	}
	return out
}

// WriteTail writes the newest n events to w.
func (r *Recorder) WriteTail(w io.Writer, n int, format Format) error {
	var buf []byte
	for _, ev := range r.Tail(n) {
		buf = AppendEvent(buf, &ev, format)
	}
	_, err := w.Write(buf)
	return err
}

func (r *Recorder) Flush() error { return nil }

// Close writes the held events to the configured output, if any.
func (r *Recorder) Close() error {
	if r.sink == nil {
		return nil
	}
	sink := r.sink
	r.sink = nil
	if err := r.WriteTail(sink, 0, r.format); err != nil {
		return errors.Join(fmt.Errorf("write trace ring: %w", err), closeOutput(sink))
	}
	return closeOutput(sink)
}

func (r *Recorder) Level() Level { return r.level }
