package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/chef"
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// ErrUnsolvable is returned by Solve for paths marked unsolvable.
var ErrUnsolvable = errors.New("path has no solvable assignment")

// Epoch is the virtual time at which every replay starts.
var Epoch = time.Unix(0, 0).UTC()

// Engine replays a script as a chef.Engine. Time is virtual and advances by
// the script's step after every event.
type Engine struct {
	script *Script
	paths  map[chef.PathID]*pathState

	listeners map[int]chef.Listener
	nextID    int

	now     time.Time
	tracing bool

	Logger logrus.FieldLogger
}

var (
	_ chef.Engine          = (*Engine)(nil)
	_ chef.TraceController = (*Engine)(nil)
)

type pathState struct {
	*Path
	pos   int
	alive bool
}

// NewEngine returns an engine over a validated script.
func NewEngine(script *Script) *Engine {
	e := &Engine{
		script:    script,
		listeners: make(map[int]chef.Listener),
		Logger:    logrus.StandardLogger(),
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.paths = make(map[chef.PathID]*pathState, len(e.script.Paths))
	for i := range e.script.Paths {
		p := &e.script.Paths[i]
		e.paths[p.ID] = &pathState{Path: p}
	}
	e.now = Epoch
	e.tracing = false
}

// Now returns the virtual time.
func (e *Engine) Now() time.Time { return e.now }

// Subscribe registers l for engine events.
func (e *Engine) Subscribe(l chef.Listener) func() {
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return func() { delete(e.listeners, id) }
}

// each calls fn for every listener in subscription order. Listeners removed
// during the iteration are skipped.
func (e *Engine) each(fn func(l chef.Listener)) {
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if l, ok := e.listeners[id]; ok {
			fn(l)
		}
	}
}

// TerminatePath retires path and notifies listeners.
func (e *Engine) TerminatePath(path chef.PathID) {
	p := e.paths[path]
	if p == nil || !p.alive {
		return
	}
	p.alive = false
	e.Logger.WithField("path", path).Debug("path terminated")
	e.each(func(l chef.Listener) { l.OnKill(path) })
}

// IsAlive returns true if path has been spawned and not yet terminated.
func (e *Engine) IsAlive(path chef.PathID) bool {
	p := e.paths[path]
	return p != nil && p.alive
}

// PC returns the path's base PC advanced by the number of replayed events.
func (e *Engine) PC(path chef.PathID) uint64 {
	p := e.paths[path]
	if p == nil {
		return 0
	}
	return p.PC + uint64(p.pos)
}

// Solve returns the recorded inputs of path.
func (e *Engine) Solve(path chef.PathID) ([]chef.Binding, error) {
	p := e.paths[path]
	if p == nil {
		return nil, fmt.Errorf("unknown path: %d", path)
	} else if p.Unsolvable {
		return nil, ErrUnsolvable
	}
	return p.Inputs, nil
}

// SetTracing toggles translation tracing. A replay has a single translation
// layer so the flag is shared by every path.
func (e *Engine) SetTracing(path chef.PathID, enabled bool) {
	e.Logger.WithFields(logrus.Fields{"path": path, "enabled": enabled}).Debug("set tracing")
	e.tracing = enabled
}

// Tracing returns the translation tracing flag.
func (e *Engine) Tracing() bool { return e.tracing }

// Run replays the script through s until the session terminates. The
// session's clock is replaced by the engine's virtual clock. If ctx is
// canceled the session is stopped and the context error returned. Otherwise
// returns the error that terminated the session, if any.
func (e *Engine) Run(ctx context.Context, s *chef.Session) error {
	e.reset()

	active := e.script.Root().ID
	e.paths[active].alive = true

	s.Now = e.Now
	s.Start(active, e.script.MaxTime)
	monitor := s.Monitor()

	for s.State() == chef.SessionActive {
		if err := ctx.Err(); err != nil {
			s.Stop()
			return err
		}

		if !e.IsAlive(active) {
			next, err := s.SelectPath()
			if err != nil {
				s.Stop()
				return err
			}
			e.Logger.WithFields(logrus.Fields{"from": active, "to": next}).Debug("switch")
			e.each(func(l chef.Listener) { l.OnSwitch(active, next) })
			active = next
			continue
		}

		p := e.paths[active]
		if p.pos >= len(p.Events) {
			if err := s.End(active, false); err != nil {
				return err
			}
			continue
		}

		ev := &p.Events[p.pos]
		p.pos++
		if e.debugEnabled() {
			e.Logger.WithFields(logrus.Fields{"path": active, "event": ev.Kind()}).Debug(spew.Sprintf("%+v", ev))
		}

		switch {
		case ev.Update != nil:
			u := ev.Update
			monitor.DoUpdateHLPC(active, u.PC, u.Opcode, u.File, u.Function, u.Line)

		case ev.Fork != nil:
			paths := make([]chef.PathID, 0, len(ev.Fork)+1)
			paths = append(paths, active)
			for _, id := range ev.Fork {
				e.paths[id].alive = true
				paths = append(paths, id)
			}
			e.each(func(l chef.Listener) { l.OnFork(active, paths) })

		case ev.End != nil:
			if err := s.End(active, ev.End.Error); err != nil {
				return err
			}

		case ev.Wait != 0:
			e.now = e.now.Add(ev.Wait)
		}

		e.now = e.now.Add(e.script.Step)
		now := e.now
		e.each(func(l chef.Listener) { l.OnTimer(now) })
	}

	return s.Err()
}

// debugEnabled reports whether the logger emits debug entries.
func (e *Engine) debugEnabled() bool {
	switch l := e.Logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return true
}
