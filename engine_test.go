package chef_test

import (
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/benbjohnson/chef"
	"github.com/sirupsen/logrus"
)

// testEngine is an in-memory chef.Engine driven directly by tests.
type testEngine struct {
	listeners map[int]chef.Listener
	nextID    int

	nextPath   chef.PathID
	alive      map[chef.PathID]bool
	pcs        map[chef.PathID]uint64
	bindings   map[chef.PathID][]chef.Binding
	tracing    map[chef.PathID]bool
	unsolvable map[chef.PathID]bool
	terminated []chef.PathID

	// Called after listeners are notified of a terminated path.
	onTerminate func(path chef.PathID)
}

var _ chef.TraceController = (*testEngine)(nil)

// newTestEngine returns an engine with a single live path, 1.
func newTestEngine() *testEngine {
	return &testEngine{
		listeners:  make(map[int]chef.Listener),
		nextPath:   2,
		alive:      map[chef.PathID]bool{1: true},
		pcs:        map[chef.PathID]uint64{1: 0x1000},
		bindings:   make(map[chef.PathID][]chef.Binding),
		tracing:    make(map[chef.PathID]bool),
		unsolvable: make(map[chef.PathID]bool),
	}
}

func (e *testEngine) Subscribe(l chef.Listener) func() {
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	return func() { delete(e.listeners, id) }
}

// each calls fn for every listener in subscription order. Listeners removed
// while iterating are skipped.
func (e *testEngine) each(fn func(l chef.Listener)) {
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

func (e *testEngine) TerminatePath(path chef.PathID) {
	if !e.alive[path] {
		return
	}
	delete(e.alive, path)
	e.terminated = append(e.terminated, path)
	e.each(func(l chef.Listener) { l.OnKill(path) })
	if e.onTerminate != nil {
		e.onTerminate(path)
	}
}

func (e *testEngine) IsAlive(path chef.PathID) bool { return e.alive[path] }
func (e *testEngine) PC(path chef.PathID) uint64    { return e.pcs[path] }

func (e *testEngine) Solve(path chef.PathID) ([]chef.Binding, error) {
	if e.unsolvable[path] {
		return nil, errors.New("unsatisfiable")
	}
	return e.bindings[path], nil
}

func (e *testEngine) SetTracing(path chef.PathID, enabled bool) {
	e.tracing[path] = enabled
}

// Fork spawns n paths from active and notifies listeners.
func (e *testEngine) Fork(active chef.PathID, n int) []chef.PathID {
	paths := []chef.PathID{active}
	for i := 0; i < n; i++ {
		path := e.nextPath
		e.nextPath++
		e.alive[path] = true
		e.pcs[path] = e.pcs[active]
		paths = append(paths, path)
	}
	e.each(func(l chef.Listener) { l.OnFork(active, paths) })
	return paths[1:]
}

func (e *testEngine) Switch(oldPath, newPath chef.PathID) {
	e.each(func(l chef.Listener) { l.OnSwitch(oldPath, newPath) })
}

func (e *testEngine) Timer(now time.Time) {
	e.each(func(l chef.Listener) { l.OnTimer(now) })
}

// recorder collects emitted test cases.
type recorder struct {
	cases []*chef.TestCase
	err   error
}

func (r *recorder) WriteTestCase(tc *chef.TestCase) error {
	if r.err != nil {
		return r.err
	}
	r.cases = append(r.cases, tc)
	return nil
}

// Categories returns the category of every recorded case in order.
func (r *recorder) Categories() []chef.Category {
	a := make([]chef.Category, len(r.cases))
	for i, tc := range r.cases {
		a[i] = tc.Category
	}
	return a
}

// Count returns the number of recorded cases of category c.
func (r *recorder) Count(c chef.Category) (n int) {
	for _, tc := range r.cases {
		if tc.Category == c {
			n++
		}
	}
	return n
}

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Add(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

// memSink keeps dumps in memory.
type memSink struct {
	files map[string][]string
	err   error
}

func (s *memSink) Create(name string) (io.WriteCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.files == nil {
		s.files = make(map[string][]string)
	}
	return &memFile{sink: s, name: name}, nil
}

type memFile struct {
	sink *memSink
	name string
	buf  []byte
}

func (f *memFile) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *memFile) Close() error {
	f.sink.files[f.name] = append(f.sink.files[f.name], string(f.buf))
	return nil
}

// testLogger returns a logger that discards output.
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// harness wires a session to a test engine.
type harness struct {
	Engine  *testEngine
	Monitor *chef.InterpreterMonitor
	Session *chef.Session
	Output  *recorder
	Sink    *memSink
	Clock   *testClock
}

func newHarness(tb testing.TB, config chef.SessionConfig) *harness {
	tb.Helper()

	h := &harness{
		Engine: newTestEngine(),
		Output: &recorder{},
		Sink:   &memSink{},
		Clock:  newTestClock(),
	}
	h.Monitor = chef.NewInterpreterMonitor(h.Engine)
	h.Monitor.Logger = testLogger()

	h.Session = chef.NewSession(h.Engine, h.Monitor, config)
	h.Session.Output = h.Output
	h.Session.Sink = h.Sink
	h.Session.Now = h.Clock.Now
	h.Session.Logger = testLogger()
	return h
}

// Update reports a trace update for path at pc.
func (h *harness) Update(path chef.PathID, pc ...uint32) {
	h.Monitor.DoUpdateHLPC(path, chef.HighLevelPC(pc), chef.Opcode(pc[0]&0xff), "main.py", "main", int(pc[0]))
}
