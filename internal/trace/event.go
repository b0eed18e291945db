package trace

import "time"

// Kind classifies an event.
type Kind uint8

const (
	KindBegin     Kind = iota + 1 // span opened
	KindEnd                       // span closed
	KindPoint                     // instant event inside a span
	KindHeartbeat                 // liveness tick from the CLI
	KindFailure                   // a module or pass failed
)

var kindNames = [...]string{
	KindBegin:     "begin",
	KindEnd:       "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
	KindFailure:   "failure",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event. Smaller values are coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // one CLI command
	ScopePass                    // lower-types, fixup-paths
	ScopeModule                  // one module worker
	ScopeNode                    // a single rewrite such as a path split
)

var scopeNames = [...]string{
	ScopeDriver: "driver",
	ScopePass:   "pass",
	ScopeModule: "module",
	ScopeNode:   "node",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record. Seq is assigned by the tracer that stores or
// writes the event.
type Event struct {
	Time   time.Time
	Seq    uint64
	Kind   Kind
	Scope  Scope
	Span   uint64 // set on begin and end events only
	Parent uint64
	Name   string // module name, pass name or command path
	Detail string
	Attrs  map[string]string
}
