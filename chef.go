// Package chef tracks how interpreted (high-level) instructions map onto the
// tree of low-level paths explored by a concolic execution engine.
//
// An InterpreterMonitor folds trace updates from the guest interpreter into a
// HighLevelCFG and a per-session HighLevelTree. A Session watches both and
// decides which ending paths are worth a test case.
package chef

import (
	"errors"
	"fmt"
)

var (
	ErrSessionIdle   = errors.New("chef: no active session")
	ErrNoPendingPath = errors.New("chef: no pending path available")
)

// PathID identifies a low-level execution path owned by the exploration engine.
type PathID uint64

// Opcode is the interpreter opcode reported with a trace update.
type Opcode uint32

// Location is the guest source position of a high-level instruction.
// It is informational only and never used as a key.
type Location struct {
	File     string
	Function string
	Line     int
}

// String returns the location as "file:function:line".
func (l Location) String() string {
	return fmt.Sprintf("%s:%s:%d", l.File, l.Function, l.Line)
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
