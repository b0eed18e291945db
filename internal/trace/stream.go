package trace

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var seq atomic.Uint64

func nextSeq() uint64 { return seq.Add(1) }

// Stream writes admitted events to w as they arrive. Output is buffered
// and reaches w on Flush or Close.
type Stream struct {
	mu      sync.Mutex
	out     io.Writer
	buf     *bufio.Writer
	scratch []byte
	level   Level
	format  Format
}

// NewStream returns a stream tracer writing to w.
func NewStream(w io.Writer, level Level, format Format) *Stream {
	if format == FormatAuto {
		format = FormatText
	}
	return &Stream{out: w, buf: bufio.NewWriter(w), level: level, format: format}
}

func (s *Stream) Emit(ev *Event) {
	if !s.level.Admits(ev.Kind, ev.Scope) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Seq = nextSeq()
	s.scratch = AppendEvent(s.scratch[:0], ev, s.format)
	// Trace write errors never fail the pass; Flush reports them.
	_, _ = s.buf.Write(s.scratch)
}

func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Flush()
}

// Close flushes and closes the output unless it is stdout or stderr.
func (s *Stream) Close() error {
	return errors.Join(s.Flush(), closeOutput(s.out))
}

func (s *Stream) Level() Level { return s.level }
