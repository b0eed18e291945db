package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer receives events. Emit must be safe for concurrent use because
// module workers trace in parallel.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
}

func enabled(t Tracer) bool {
	return t != nil && t.Level() > LevelOff
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)  {}
func (nopTracer) Flush() error { return nil }
func (nopTracer) Close() error { return nil }
func (nopTracer) Level() Level { return LevelOff }

// Nop drops every event.
var Nop Tracer = nopTracer{}

// fanout sends each event to a stream and a recorder.
type fanout struct {
	level    Level
	stream   *Stream
	recorder *Recorder
}

func (f *fanout) Emit(ev *Event) {
	cp := *ev
	f.stream.Emit(ev)
	f.recorder.Emit(&cp)
}

func (f *fanout) Flush() error { return errors.Join(f.stream.Flush(), f.recorder.Flush()) }
func (f *fanout) Close() error { return errors.Join(f.stream.Close(), f.recorder.Close()) }
func (f *fanout) Level() Level { return f.level }

// RecorderOf returns the in-memory recorder behind t, or nil when t keeps
// no history.
func RecorderOf(t Tracer) *Recorder {
	switch t := t.(type) {
	case *Recorder:
		return t
	case *fanout:
		return t.recorder
	}
	return nil
}

// Mode selects where events go.
type Mode uint8

const (
	ModeStream Mode = iota + 1 // written as they happen
	ModeRing                   // last RingSize events kept in memory
	ModeBoth
)

var modeNames = [...]string{
	ModeStream: "stream",
	ModeRing:   "ring",
	ModeBoth:   "both",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) && modeNames[m] != "" {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(s)
	for m, n := range modeNames {
		if n != "" && n == name {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("invalid trace mode: %q (expected: stream|ring|both)", s)
}

// Config describes the tracer built by New.
type Config struct {
	Level    Level
	Mode     Mode
	Format   Format
	Output   string // file path, "-" for stderr, empty for none
	RingSize int
	Writer   io.Writer // overrides Output when set
}

// DefaultRingSize is used when Config.RingSize is not positive.
const DefaultRingSize = 4096

// New builds a tracer for cfg. Stream mode writes to the output as events
// arrive. Ring mode keeps the most recent events and writes them to the
// output, if any, on Close. Both mode streams and also keeps a ring for
// failure reports.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	format := cfg.Format
	if format == FormatAuto {
		format = formatForPath(cfg.Output)
	}

	switch cfg.Mode {
	case ModeStream:
		w, err := openOutput(cfg)
		if err != nil {
			return nil, err
		}
		return NewStream(w, cfg.Level, format), nil
	case ModeRing:
		r := NewRecorder(cfg.RingSize, cfg.Level)
		if cfg.Writer != nil || cfg.Output != "" {
			w, err := openOutput(cfg)
			if err != nil {
				return nil, err
			}
			r.sink, r.format = w, format
		}
		return r, nil
	case ModeBoth:
		w, err := openOutput(cfg)
		if err != nil {
			return nil, err
		}
		return &fanout{
			level:    cfg.Level,
			stream:   NewStream(w, cfg.Level, format),
			recorder: NewRecorder(cfg.RingSize, cfg.Level),
		}, nil
	}
	return nil, fmt.Errorf("unknown trace mode %v", cfg.Mode)
}

func openOutput(cfg Config) (io.Writer, error) {
	switch {
	case cfg.Writer != nil:
		return cfg.Writer, nil
	case cfg.Output == "" || cfg.Output == "-":
		return os.Stderr, nil
	}
	f, err := os.Create(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, nil
}

// closeOutput closes w unless it is a standard stream.
func closeOutput(w io.Writer) error {
	if w == os.Stderr || w == os.Stdout {
		return nil
	}
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
