package trace

import (
	"fmt"
	"strings"
)

// Level selects which events a tracer keeps.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // failures only
	LevelPhase        // commands and passes
	LevelDetail       // plus module workers
	LevelDebug        // plus individual rewrites
)

var levelNames = [...]string{
	LevelOff:    "off",
	LevelError:  "error",
	LevelPhase:  "phase",
	LevelDetail: "detail",
	LevelDebug:  "debug",
}

// deepest scope admitted for span and point events at each level
var levelScope = [...]Scope{
	LevelOff:    0,
	LevelError:  0,
	LevelPhase:  ScopePass,
	LevelDetail: ScopeModule,
	LevelDebug:  ScopeNode,
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(s)
	for l, n := range levelNames {
		if n == name {
			return Level(l), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// Admits reports whether an event of the given kind and scope passes l.
// Failures and heartbeats pass every level except off.
func (l Level) Admits(kind Kind, scope Scope) bool {
	if l == LevelOff || int(l) >= len(levelScope) {
		return false
	}
	if kind == KindFailure || kind == KindHeartbeat {
		return true
	}
	return scope <= levelScope[l]
}
