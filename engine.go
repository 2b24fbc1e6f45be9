package chef

import (
	"time"
)

// Engine is the exploration engine that owns low-level paths. Exactly one path
// runs at a time and listeners are invoked serially on the engine's goroutine.
type Engine interface {
	// Subscribe registers l for fork, switch, kill and timer events.
	// The returned function removes the registration.
	Subscribe(l Listener) (unsubscribe func())

	// TerminatePath retires a path. Kill listeners may fire before it returns.
	TerminatePath(path PathID)

	// IsAlive returns true if the engine still owns path.
	IsAlive(path PathID) bool

	// PC returns the current low-level program counter of path.
	PC(path PathID) uint64

	// Solve returns concrete input bindings that drive execution down path.
	Solve(path PathID) ([]Binding, error)
}

// Listener receives engine events.
type Listener interface {
	// OnFork is called after active forks. newPaths may include active itself.
	OnFork(active PathID, newPaths []PathID)
	OnSwitch(oldPath, newPath PathID)
	OnKill(path PathID)
	OnTimer(now time.Time)
}

// TraceController is implemented by engines that can toggle low-level trace
// instrumentation of guest code.
type TraceController interface {
	SetTracing(path PathID, enabled bool)
}

// Binding is a concrete value resolved for one symbolic input.
type Binding struct {
	Name  string `yaml:"name" msgpack:"name"`
	Value []byte `yaml:"value" msgpack:"value"`
}
