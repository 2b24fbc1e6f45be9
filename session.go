package chef

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionActive
)

// String returns the name of the state.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionActive:
		return "active"
	default:
		return fmt.Sprintf("SessionState<%d>", int(s))
	}
}

// Default session settings.
const (
	DefaultTreeDumpInterval = 60 * time.Second
)

// SessionConfig holds the policy settings of a Session.
type SessionConfig struct {
	// Terminate the whole session after the first error path.
	StopOnError bool

	// Interval between periodic tree and CFG dumps. Zero disables them.
	TreeDumpInterval time.Duration

	// Maximum running time of a single path. Zero disables the limit.
	PathTimeout time.Duration

	// Attach distance diagnostics to every test case.
	ExtraDetails bool
}

// DefaultSessionConfig returns the default settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TreeDumpInterval: DefaultTreeDumpInterval,
	}
}

// Stats summarizes a session.
type Stats struct {
	Paths             int
	ErrorPaths        int
	Records           map[Category]int
	Instructions      int
	TreeNodes         int
	ForkPoints        int
	TerminatedPending int
	Elapsed           time.Duration
}

// pathContext locates a path within the fork tree.
type pathContext struct {
	startFork  ForkID // fork point the path was spawned from
	startIndex int
	fork       ForkID // fork point the next fork hangs off
	index      int
}

// Session observes one exploration episode from Start until termination and
// decides which ending paths are worth a test case.
//
// All methods must be called from the engine's goroutine.
type Session struct {
	engine  Engine
	monitor *InterpreterMonitor

	Config SessionConfig

	// Parked paths waiting to be resumed.
	Searcher Searcher

	// Destination of emitted test cases. Nil discards them.
	Output TestCaseWriter

	// Destination of tree and CFG dumps. Nil disables dumps.
	Sink DumpSink

	// Clock used for timestamps and deadlines.
	Now func() time.Time

	Logger logrus.FieldLogger

	state SessionState
	busy  bool
	err   error
	stats Stats

	activePath PathID
	hasActive  bool
	forks      *ForkTree
	ctx        pathContext
	pending    map[PathID]pathContext

	// Divergence markers of the running path.
	treeDivergence NodeID
	cfgDivergence  NodeID

	sessionStart    time.Time
	sessionDeadline time.Time
	pathStart       time.Time
	pathDeadline    time.Time
	nextDump        time.Time

	unsubscribeEngine  func()
	unsubscribeMonitor func()
}

// NewSession returns an idle session over engine and monitor.
func NewSession(engine Engine, monitor *InterpreterMonitor, config SessionConfig) *Session {
	return &Session{
		engine:         engine,
		monitor:        monitor,
		Config:         config,
		Searcher:       NewDFSSearcher(),
		Now:            time.Now,
		Logger:         logrus.StandardLogger(),
		forks:          NewForkTree(),
		treeDivergence: NoNode,
		cfgDivergence:  NoNode,
	}
}

// State returns the lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Err returns the error that terminated the last session, if any.
func (s *Session) Err() error { return s.err }

// Monitor returns the interpreter monitor.
func (s *Session) Monitor() *InterpreterMonitor { return s.monitor }

// ForkTree returns the fork tree of the current session.
func (s *Session) ForkTree() *ForkTree { return s.forks }

// ActivePath returns the running path and whether one is running.
func (s *Session) ActivePath() (PathID, bool) { return s.activePath, s.hasActive }

// PendingPaths returns the parked paths in ascending order.
func (s *Session) PendingPaths() []PathID {
	a := make([]PathID, 0, len(s.pending))
	for path := range s.pending {
		a = append(a, path)
	}
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	return a
}

// Stats returns a copy of the session statistics. Totals are live while the
// session is active and frozen at termination afterward.
func (s *Session) Stats() Stats {
	if s.state == SessionActive {
		s.snapshotStats()
	}
	other := s.stats
	other.Records = make(map[Category]int, len(s.stats.Records))
	for k, v := range s.stats.Records {
		other.Records[k] = v
	}
	return other
}

func (s *Session) snapshotStats() {
	s.stats.Instructions = s.monitor.CFG().Len()
	if tree := s.monitor.Tree(); tree != nil {
		s.stats.TreeNodes = tree.Len()
	}
	s.stats.ForkPoints = s.forks.Len()
	s.stats.Elapsed = s.Now().Sub(s.sessionStart)
}

// enter marks the session busy. Returns false if an event is already being
// handled, in which case the caller must drop the event.
func (s *Session) enter(event string) bool {
	if s.busy {
		s.Logger.WithField("event", event).Debug("re-entrant event ignored")
		return false
	}
	s.busy = true
	return true
}

func (s *Session) leave() { s.busy = false }

// Start begins a session with path as the running path. A positive maxTime
// sets a deadline for the whole session. Panic if a session is already active.
func (s *Session) Start(path PathID, maxTime time.Duration) {
	assert(s.state == SessionIdle, "session: already active")
	if !s.enter("start") {
		return
	}
	defer s.leave()

	s.monitor.StartTrace(path)

	s.forks = NewForkTree()
	root := s.forks.NewRoot(s.engine.PC(path), s.monitor.HLTreeNode(path).id, 1)
	s.ctx = pathContext{startFork: root.id, fork: root.id}
	s.pending = make(map[PathID]pathContext)
	s.resetDivergence()

	now := s.Now()
	s.sessionStart = now
	s.sessionDeadline = time.Time{}
	if maxTime > 0 {
		s.sessionDeadline = now.Add(maxTime)
	}
	s.resetPathTimer(now)
	s.nextDump = time.Time{}
	if s.Config.TreeDumpInterval > 0 {
		s.nextDump = now.Add(s.Config.TreeDumpInterval)
	}

	s.err = nil
	s.stats = Stats{Records: make(map[Category]int)}
	s.state = SessionActive
	s.activePath, s.hasActive = path, true

	s.unsubscribeEngine = s.engine.Subscribe(s)
	s.unsubscribeMonitor = s.monitor.Subscribe(s)
	if tc, ok := s.engine.(TraceController); ok {
		tc.SetTracing(path, true)
	}

	s.Logger.WithFields(logrus.Fields{
		"path":    path,
		"maxTime": maxTime,
	}).Info("session started")
}

func (s *Session) resetDivergence() {
	s.treeDivergence, s.cfgDivergence = NoNode, NoNode
}

func (s *Session) resetPathTimer(now time.Time) {
	s.pathStart = now
	s.pathDeadline = time.Time{}
	if s.Config.PathTimeout > 0 {
		s.pathDeadline = now.Add(s.Config.PathTimeout)
	}
}

// OnInterpreterUpdate records the divergence markers of the running path.
func (s *Session) OnInterpreterUpdate(path PathID, node *HighLevelTreeNode) {
	if s.state != SessionActive || !s.enter("update") {
		return
	}
	defer s.leave()

	if s.treeDivergence == NoNode && node.pathCounter == 1 {
		s.treeDivergence = node.id
		s.Logger.WithFields(logrus.Fields{"path": path, "node": node.id}).Debug("new tree path")
	}
	if s.cfgDivergence == NoNode && s.monitor.CFG().Changed() {
		s.cfgDivergence = node.id
		s.Logger.WithFields(logrus.Fields{"path": path, "node": node.id}).Debug("new cfg fragment")
	}
}

// OnFork records the fork in the fork tree and parks every spawned path.
// The running path keeps branch 0.
func (s *Session) OnFork(active PathID, newPaths []PathID) {
	if s.state != SessionActive || !s.enter("fork") {
		return
	}
	defer s.leave()

	assert(s.hasActive && active == s.activePath, "session: fork of inactive path: path=%d active=%d", active, s.activePath)

	spawned := make([]PathID, 0, len(newPaths))
	for _, path := range newPaths {
		if path != active {
			spawned = append(spawned, path)
		}
	}
	if len(spawned) == 0 {
		return
	}

	node := s.monitor.HLTreeNode(active)
	parent := s.forks.Point(s.ctx.fork)
	point := s.forks.NewChild(parent, s.ctx.index, s.engine.PC(active), node.id, len(spawned)+1)
	s.ctx.fork, s.ctx.index = point.id, 0

	for i, path := range spawned {
		s.pending[path] = pathContext{startFork: point.id, startIndex: i + 1, fork: point.id, index: i + 1}
		s.Searcher.AddPath(path)
	}

	s.Logger.WithFields(logrus.Fields{
		"path":    active,
		"spawned": len(spawned),
		"depth":   point.depth,
	}).Debug("fork")
}

// SelectPath removes and returns the next parked path to resume. The engine
// is expected to switch to it.
func (s *Session) SelectPath() (PathID, error) {
	if s.state != SessionActive {
		return 0, ErrSessionIdle
	}
	path, ok := s.Searcher.SelectPath()
	if !ok {
		return 0, ErrNoPendingPath
	}
	return path, nil
}

// OnSwitch resumes a parked path. A running path switched away from before it
// ended is parked at its current position.
func (s *Session) OnSwitch(oldPath, newPath PathID) {
	if s.state != SessionActive || oldPath == newPath || !s.enter("switch") {
		return
	}
	defer s.leave()

	if s.hasActive && oldPath == s.activePath && s.engine.IsAlive(oldPath) {
		s.pending[oldPath] = s.ctx
		s.Searcher.AddPath(oldPath)
		s.hasActive = false
	}

	ctx, ok := s.pending[newPath]
	if !ok {
		s.Logger.WithField("path", newPath).Debug("switch to untracked path")
		return
	}
	delete(s.pending, newPath)
	s.Searcher.RemovePath(newPath)

	s.activePath, s.hasActive = newPath, true
	s.ctx = ctx
	s.resetDivergence()
	s.resetPathTimer(s.Now())

	s.Logger.WithField("path", newPath).Debug("path resumed")
}

// OnKill ends the running path or forgets a parked one. The session terminates
// once no path is running and none is pending.
func (s *Session) OnKill(path PathID) {
	if s.state != SessionActive || !s.enter("kill") {
		return
	}
	defer s.leave()

	if s.hasActive && path == s.activePath {
		s.end(path, false)
		return
	}
	if _, ok := s.pending[path]; !ok {
		return
	}
	delete(s.pending, path)
	s.Searcher.RemovePath(path)

	if !s.hasActive && len(s.pending) == 0 {
		s.Logger.WithField("path", path).Info("last pending path killed")
		s.terminateSession(path)
	}
}

// OnTimer checks the path deadline, the session deadline and the dump
// interval against now.
func (s *Session) OnTimer(now time.Time) {
	if s.state != SessionActive || !s.enter("timer") {
		return
	}
	defer s.leave()

	if s.hasActive && !s.pathDeadline.IsZero() && !now.Before(s.pathDeadline) {
		s.Logger.WithField("path", s.activePath).Info("path timed out")
		s.end(s.activePath, true)
	}

	if s.state == SessionActive && !s.sessionDeadline.IsZero() && !now.Before(s.sessionDeadline) {
		path, hasActive := s.activePath, s.hasActive
		s.Logger.WithField("path", path).Info("session timed out")
		s.terminateSession(path)
		if hasActive {
			s.retire(path)
		}
	}

	if s.state == SessionActive && !s.nextDump.IsZero() && !now.Before(s.nextDump) {
		if err := s.writeDumps(); err != nil {
			path, hasActive := s.activePath, s.hasActive
			s.fail(path, err)
			if hasActive {
				s.retire(path)
			}
			return
		}
		s.nextDump = now.Add(s.Config.TreeDumpInterval)
	}
}

// Stop terminates an active session without classifying the running path.
// The running path and all parked paths are retired without test cases.
func (s *Session) Stop() {
	if s.state != SessionActive || !s.enter("stop") {
		return
	}
	defer s.leave()

	path, hasActive := s.activePath, s.hasActive
	s.Logger.WithField("path", path).Warn("session stopped")
	s.terminateSession(path)
	if hasActive {
		s.retire(path)
	}
}

// End classifies the ending path, emits its test cases, and either readies
// the session for the next path or terminates it. The path is always
// terminated in the engine before End returns. Returns an error if writing a
// test case or a dump failed, in which case the session is terminated.
func (s *Session) End(path PathID, isError bool) error {
	if s.state != SessionActive {
		return ErrSessionIdle
	}
	if !s.enter("end") {
		return nil
	}
	defer s.leave()
	return s.end(path, isError)
}

func (s *Session) end(path PathID, isError bool) error {
	assert(s.hasActive && path == s.activePath, "session: end of inactive path: path=%d active=%d", path, s.activePath)
	defer s.retire(path)

	cfg := s.monitor.CFG()
	node := s.monitor.HLTreeNode(path)
	logger := s.Logger.WithFields(logrus.Fields{"path": path, "node": node.id})

	var categories []Category
	terminate := false
	if isError {
		categories = append(categories, CategoryError)
		terminate = s.Config.StopOnError
		s.stats.ErrorPaths++
		logger.Info("error path")
	}
	if cfg.Changed() {
		categories = append(categories, CategoryNewCFG)
	}
	if node.pathCounter == 1 {
		categories = append(categories, CategoryNewPath)
	}
	categories = append(categories, CategoryAll)

	if err := s.emit(path, categories); err != nil {
		s.fail(path, err)
		return err
	}
	logger.WithField("categories", categories).Info("path ended")

	cfg.AnalyzeCFG()
	s.stats.Paths++

	if terminate || len(s.pending) == 0 {
		s.terminateSession(path)
		return s.err
	}
	s.hasActive = false
	return nil
}

// retire terminates path in the engine if it is still alive.
func (s *Session) retire(path PathID) {
	if s.engine.IsAlive(path) {
		s.engine.TerminatePath(path)
	}
}

// emit writes one test case per category for path. Paths without a concrete
// input assignment are skipped.
func (s *Session) emit(path PathID, categories []Category) error {
	bindings, err := s.engine.Solve(path)
	if err != nil {
		s.Logger.WithField("path", path).WithError(err).Warn("could not solve path, skipping test case")
		return nil
	}

	start := s.forks.Point(s.ctx.startFork)
	tree := s.monitor.Tree()
	instr := tree.InstructionOf(tree.Node(start.Node))

	var details *TestCaseDetails
	if s.Config.ExtraDetails {
		details = s.details(start)
	}

	for _, c := range categories {
		s.stats.Records[c]++
		if s.Output == nil {
			continue
		}
		if err := s.Output.WriteTestCase(&TestCase{
			Category: c,
			Path:     path,
			Elapsed:  s.Now().Sub(s.sessionStart),
			PC:       start.PC,
			Location: instr.Location,
			Details:  details,
			Bindings: bindings,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) details(start *ForkPoint) *TestCaseDetails {
	cfg, tree := s.monitor.CFG(), s.monitor.Tree()
	startNode := tree.Node(start.Node)
	startInstr := tree.InstructionOf(startNode)

	d := &TestCaseDetails{
		StartDist:      startInstr.distToUncovered,
		TreeDivergence: -1,
		TreeMinDist:    -1,
		CFGDivergence:  -1,
		CFGMinDist:     -1,
		PendingMinDist: -1,
		PendingMaxDist: -1,
		ForkDepth:      start.depth,
	}

	if s.treeDivergence != NoNode {
		n := tree.Node(s.treeDivergence)
		d.TreeDivergence = tree.DistanceToAncestor(n, startNode)
		d.TreeMinDist = cfg.ComputeMinDistance(tree.InstructionOf(n), startInstr)
	}
	if s.cfgDivergence != NoNode {
		n := tree.Node(s.cfgDivergence)
		d.CFGDivergence = tree.DistanceToAncestor(n, startNode)
		d.CFGMinDist = cfg.ComputeMinDistance(tree.InstructionOf(n), startInstr)
	}

	for _, path := range s.PendingPaths() {
		node := s.monitor.HLTreeNode(path)
		if node == nil {
			continue
		}
		dist := tree.InstructionOf(node).distToUncovered
		if d.PendingMinDist == -1 || dist < d.PendingMinDist {
			d.PendingMinDist = dist
		}
		if dist > d.PendingMaxDist {
			d.PendingMaxDist = dist
		}
	}
	return d
}

// writeDumps writes the execution tree and the CFG to the sink.
func (s *Session) writeDumps() error {
	if s.Sink == nil {
		return nil
	}
	for _, dump := range []struct {
		name string
		fn   func(w io.Writer) error
	}{
		{"interp_tree.dot", s.monitor.DumpHighLevelTree},
		{"interp_cfg.dot", s.monitor.DumpHighLevelCFG},
	} {
		w, err := s.Sink.Create(dump.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", dump.name, err)
		}
		err = dump.fn(w)
		if e := w.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", dump.name, err)
		}
	}
	return nil
}

// fail records err and terminates the session.
func (s *Session) fail(path PathID, err error) {
	s.Logger.WithField("path", path).WithError(err).Error("session failed")
	if s.err == nil {
		s.err = err
	}
	s.terminateSession(path)
}

// terminateSession tears the session down. Parked paths are terminated in the
// engine without test cases. Safe to call on an idle session.
func (s *Session) terminateSession(path PathID) {
	if s.state != SessionActive {
		return
	}

	if tc, ok := s.engine.(TraceController); ok {
		tc.SetTracing(path, false)
	}

	if err := s.writeDumps(); err != nil {
		s.Logger.WithError(err).Error("cannot write final dumps")
		if s.err == nil {
			s.err = err
		}
	}

	for _, p := range s.PendingPaths() {
		delete(s.pending, p)
		s.Searcher.RemovePath(p)
		s.retire(p)
		s.stats.TerminatedPending++
	}

	s.snapshotStats()
	s.state = SessionIdle
	s.hasActive = false
	if s.unsubscribeEngine != nil {
		s.unsubscribeEngine()
		s.unsubscribeEngine = nil
	}
	if s.unsubscribeMonitor != nil {
		s.unsubscribeMonitor()
		s.unsubscribeMonitor = nil
	}

	// Path positions refer into the tree and fork points refer into both.
	s.monitor.DetachPaths()
	s.forks.Clear()
	s.monitor.StopTrace(path)
	s.resetDivergence()

	s.Logger.WithFields(logrus.Fields{
		"path":    path,
		"paths":   s.stats.Paths,
		"elapsed": s.stats.Elapsed,
	}).Info("session terminated")
}
