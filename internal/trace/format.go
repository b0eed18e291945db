package trace

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Format is the encoding of written events.
type Format uint8

const (
	FormatAuto   Format = iota // chosen from the output path
	FormatText                 // one line per event
	FormatNDJSON               // one JSON object per line
)

// ParseFormat accepts auto, text, ndjson or json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
}

func formatForPath(path string) Format {
	if strings.HasSuffix(path, ".ndjson") || strings.HasSuffix(path, ".json") {
		return FormatNDJSON
	}
	return FormatText
}

// AppendEvent appends the encoding of ev to dst.
func AppendEvent(dst []byte, ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return appendJSON(dst, ev)
	}
	return appendText(dst, ev)
}

type jsonEvent struct {
	Time   string            `json:"time"`
	Seq    uint64            `json:"seq"`
	Kind   string            `json:"kind"`
	Scope  string            `json:"scope"`
	Span   uint64            `json:"span,omitempty"`
	Parent uint64            `json:"parent,omitempty"`
	Name   string            `json:"name"`
	Detail string            `json:"detail,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

func appendJSON(dst []byte, ev *Event) []byte {
	data, err := json.Marshal(jsonEvent{
		Time:   ev.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
		Seq:    ev.Seq,
		Kind:   ev.Kind.String(),
		Scope:  ev.Scope.String(),
		Span:   ev.Span,
		Parent: ev.Parent,
		Name:   ev.Name,
		Detail: ev.Detail,
		Attrs:  ev.Attrs,
	})
	if err != nil {
		return fmt.Appendf(dst, "{\"error\":%q}\n", err.Error())
	}
	return append(append(dst, data...), '\n')
}

var textMarks = [...]string{
	KindBegin:     "→ ",
	KindEnd:       "← ",
	KindPoint:     "• ",
	KindHeartbeat: "♡ ",
	KindFailure:   "✗ ",
}

// appendText writes "#seq [indent]mark scope name (detail) {k=v, ...}".
func appendText(dst []byte, ev *Event) []byte {
	dst = append(dst, '#')
	seq := strconv.FormatUint(ev.Seq, 10)
	for range 6 - len(seq) {
		dst = append(dst, '0')
	}
	dst = append(dst, seq...)
	dst = append(dst, ' ')
	if ev.Parent > 0 {
		dst = append(dst, "  "...)
	}
	if int(ev.Kind) < len(textMarks) {
		dst = append(dst, textMarks[ev.Kind]...)
	}
	dst = append(dst, ev.Scope.String()...)
	dst = append(dst, ' ')
	dst = append(dst, ev.Name...)
	if ev.Detail != "" {
		dst = append(dst, " ("...)
		dst = append(dst, ev.Detail...)
		dst = append(dst, ')')
	}
	if len(ev.Attrs) > 0 {
		keys := make([]string, 0, len(ev.Attrs))
		for k := range ev.Attrs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		dst = append(dst, " {"...)
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ", "...)
			}
			dst = append(dst, k...)
			dst = append(dst, '=')
			dst = append(dst, ev.Attrs[k]...)
		}
		dst = append(dst, '}')
	}
	return append(dst, '\n')
}
