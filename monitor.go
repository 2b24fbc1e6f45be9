package chef

import (
	"io"
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/sirupsen/logrus"
)

// UpdateListener is notified every time the active path moves to a new tree node.
type UpdateListener interface {
	OnInterpreterUpdate(path PathID, node *HighLevelTreeNode)
}

// UpdateListenerFunc adapts a function to UpdateListener.
type UpdateListenerFunc func(path PathID, node *HighLevelTreeNode)

func (fn UpdateListenerFunc) OnInterpreterUpdate(path PathID, node *HighLevelTreeNode) {
	fn(path, node)
}

// InterpreterMonitor folds trace updates from the guest interpreter into a
// HighLevelCFG and the execution tree, and tracks the tree node of every path
// alive in the engine.
type InterpreterMonitor struct {
	engine Engine
	cfg    *HighLevelCFG
	tree   *HighLevelTree

	tracing    bool
	activePath PathID
	activeNode NodeID

	// Tree nodes of parked paths, keyed by PathID.
	paths *immutable.SortedMap

	unsubscribe func()
	listeners   map[int]UpdateListener
	nextID      int

	Logger logrus.FieldLogger
}

// NewInterpreterMonitor returns a monitor attached to engine.
func NewInterpreterMonitor(engine Engine) *InterpreterMonitor {
	return &InterpreterMonitor{
		engine:     engine,
		cfg:        NewHighLevelCFG(),
		activeNode: NoNode,
		paths:      immutable.NewSortedMap(&pathComparer{}),
		listeners:  make(map[int]UpdateListener),
		Logger:     logrus.StandardLogger(),
	}
}

// CFG returns the control-flow graph. It outlives individual traces only
// until StopTrace clears it.
func (m *InterpreterMonitor) CFG() *HighLevelCFG { return m.cfg }

// Tree returns the execution tree of the current trace or nil when idle.
func (m *InterpreterMonitor) Tree() *HighLevelTree { return m.tree }

// Tracing returns true between StartTrace and StopTrace.
func (m *InterpreterMonitor) Tracing() bool { return m.tracing }

// ActivePath returns the path whose updates are currently accepted.
func (m *InterpreterMonitor) ActivePath() PathID { return m.activePath }

// Subscribe registers l for tree position updates.
func (m *InterpreterMonitor) Subscribe(l UpdateListener) (unsubscribe func()) {
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() { delete(m.listeners, id) }
}

// StartTrace begins a tracing epoch with path as the active path.
func (m *InterpreterMonitor) StartTrace(path PathID) {
	assert(!m.tracing, "monitor: trace already active")

	m.cfg.Logger = m.Logger
	root := m.cfg.RecordNode(HighLevelPC{})
	m.tree = NewHighLevelTree(m.cfg, root)
	m.tree.BumpPathCounter(m.tree.Root())

	m.tracing = true
	m.activePath = path
	m.activeNode = m.tree.Root().id
	m.unsubscribe = m.engine.Subscribe(m)

	m.Logger.WithField("path", path).Debug("trace started")
}

// DetachPaths forgets the position of every parked path.
func (m *InterpreterMonitor) DetachPaths() {
	m.paths = immutable.NewSortedMap(&pathComparer{})
}

// StopTrace ends the tracing epoch. Parked paths are detached before the tree
// and the CFG are cleared.
func (m *InterpreterMonitor) StopTrace(path PathID) {
	assert(m.tracing, "monitor: no active trace")

	m.DetachPaths()
	m.activeNode = NoNode
	m.tree.Clear()
	m.tree = nil
	m.cfg.Clear()

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.tracing = false

	m.Logger.WithField("path", path).Debug("trace stopped")
}

// HLTreeNode returns the tree node of path. Returns nil if path is neither
// active nor parked, or if it is active without a recorded position.
func (m *InterpreterMonitor) HLTreeNode(path PathID) *HighLevelTreeNode {
	assert(m.tracing, "monitor: no active trace")
	if path == m.activePath {
		if m.activeNode == NoNode {
			return nil
		}
		return m.tree.Node(m.activeNode)
	}
	if v, ok := m.paths.Get(path); ok {
		return m.tree.Node(v.(NodeID))
	}
	return nil
}

// ParkedPaths returns the number of paths with a recorded position other than
// the active path.
func (m *InterpreterMonitor) ParkedPaths() int { return m.paths.Len() }

// DoUpdateHLPC moves the active path to pc. The edge from the current
// instruction is recorded in the CFG and the location of the destination is
// overwritten with the reported one.
func (m *InterpreterMonitor) DoUpdateHLPC(path PathID, pc HighLevelPC, opcode Opcode, file, function string, line int) {
	if !m.tracing {
		m.Logger.WithField("path", path).Debug("update ignored, no active trace")
		return
	}
	assert(path == m.activePath, "monitor: update for inactive path: path=%d active=%d", path, m.activePath)
	if m.activeNode == NoNode {
		m.Logger.WithField("path", path).Debug("update ignored, untracked path")
		return
	}

	node := m.tree.Node(m.activeNode)
	source := m.tree.InstructionOf(node)
	dest := m.cfg.RecordEdge(source.pc, pc, opcode)
	dest.Location = Location{File: file, Function: function, Line: line}

	next := m.tree.GetOrCreateSuccessor(node, dest)
	m.tree.BumpPathCounter(next)
	m.activeNode = next.id

	for _, id := range m.listenerIDs() {
		if l, ok := m.listeners[id]; ok {
			l.OnInterpreterUpdate(path, next)
		}
	}
}

// listenerIDs returns registration IDs in subscription order.
func (m *InterpreterMonitor) listenerIDs() []int {
	ids := make([]int, 0, len(m.listeners))
	for id := 0; id < m.nextID; id++ {
		if _, ok := m.listeners[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// OnFork parks every spawned path at the active node.
func (m *InterpreterMonitor) OnFork(active PathID, newPaths []PathID) {
	if !m.tracing {
		return
	}
	assert(active == m.activePath, "monitor: fork of inactive path: path=%d active=%d", active, m.activePath)
	if m.activeNode == NoNode {
		m.Logger.WithField("path", active).Debug("fork ignored, untracked path")
		return
	}

	node := m.tree.Node(m.activeNode)
	for _, path := range newPaths {
		if path == active {
			continue
		}
		m.paths = m.paths.Set(path, node.id)
		m.tree.BumpForkCounter(node)
	}
}

// OnSwitch parks oldPath, if still alive, and resumes newPath at its recorded node.
func (m *InterpreterMonitor) OnSwitch(oldPath, newPath PathID) {
	if !m.tracing || oldPath == newPath {
		return
	}

	if oldPath == m.activePath && m.activeNode != NoNode && m.engine.IsAlive(oldPath) {
		m.paths = m.paths.Set(oldPath, m.activeNode)
	}

	v, ok := m.paths.Get(newPath)
	if !ok {
		m.Logger.WithField("path", newPath).Debug("switch to untracked path")
		m.activePath, m.activeNode = newPath, NoNode
		return
	}
	m.paths = m.paths.Delete(newPath)
	m.activePath, m.activeNode = newPath, v.(NodeID)
	m.tree.BumpPathCounter(m.tree.Node(m.activeNode))
}

// OnKill forgets the position of a parked path. The active node stays
// resolvable until the next switch so listeners can still inspect it.
func (m *InterpreterMonitor) OnKill(path PathID) {
	if !m.tracing {
		return
	}
	m.paths = m.paths.Delete(path)
}

// OnTimer is a no-op.
func (m *InterpreterMonitor) OnTimer(now time.Time) {}

// DumpHighLevelTree writes the execution tree in DOT format.
func (m *InterpreterMonitor) DumpHighLevelTree(w io.Writer) error {
	assert(m.tracing, "monitor: no active trace")
	return DumpTree(w, m.tree, m.activeNode)
}

// DumpHighLevelCFG writes the CFG in DOT format.
func (m *InterpreterMonitor) DumpHighLevelCFG(w io.Writer) error {
	return DumpCFG(w, m.cfg)
}

// pathComparer compares two PathID keys. Implements immutable.Comparer.
type pathComparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b,
// and returns 0 if a is equal to b. Panic if a or b is not a PathID.
func (c *pathComparer) Compare(a, b interface{}) int {
	if i, j := a.(PathID), b.(PathID); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
