package chef

import (
	"math/rand"
)

// Searcher is a strategy for choosing the next parked path to resume.
type Searcher interface {
	// SelectPath removes and returns the next path. Returns false if empty.
	SelectPath() (PathID, bool)

	// AddPath adds a parked path to the searcher.
	AddPath(path PathID)

	// RemovePath removes path if present and reports whether it was.
	RemovePath(path PathID) bool

	// Len returns the number of paths held by the searcher.
	Len() int
}

var (
	_ Searcher = (*DFSSearcher)(nil)
	_ Searcher = (*BFSSearcher)(nil)
	_ Searcher = (*RandomSearcher)(nil)
	_ Searcher = (*WeightedSearcher)(nil)
)

// pathList is an ordered set of paths shared by the searchers.
type pathList []PathID

func (a *pathList) remove(path PathID) bool {
	for i, p := range *a {
		if p == path {
			*a = append((*a)[:i], (*a)[i+1:]...)
			return true
		}
	}
	return false
}

// DFSSearcher represents a searcher with a depth-first search strategy.
type DFSSearcher struct {
	paths pathList
}

// NewDFSSearcher returns a new instance of DFSSearcher.
func NewDFSSearcher() *DFSSearcher {
	return &DFSSearcher{}
}

// SelectPath returns the most recently added path.
func (s *DFSSearcher) SelectPath() (PathID, bool) {
	if len(s.paths) == 0 {
		return 0, false
	}
	path := s.paths[len(s.paths)-1]
	s.paths = s.paths[:len(s.paths)-1]
	return path, true
}

// AddPath adds a new path to the searcher.
func (s *DFSSearcher) AddPath(path PathID) {
	s.paths = append(s.paths, path)
}

func (s *DFSSearcher) RemovePath(path PathID) bool { return s.paths.remove(path) }
func (s *DFSSearcher) Len() int                    { return len(s.paths) }

// BFSSearcher represents a searcher with a breadth-first search strategy.
type BFSSearcher struct {
	paths pathList
}

// NewBFSSearcher returns a new instance of BFSSearcher.
func NewBFSSearcher() *BFSSearcher {
	return &BFSSearcher{}
}

// SelectPath returns the least recently added path.
func (s *BFSSearcher) SelectPath() (PathID, bool) {
	if len(s.paths) == 0 {
		return 0, false
	}
	path := s.paths[0]
	s.paths = s.paths[1:]
	return path, true
}

// AddPath adds a new path to the searcher.
func (s *BFSSearcher) AddPath(path PathID) {
	s.paths = append(s.paths, path)
}

func (s *BFSSearcher) RemovePath(path PathID) bool { return s.paths.remove(path) }
func (s *BFSSearcher) Len() int                    { return len(s.paths) }

// RandomSearcher selects a pending path uniformly at random.
type RandomSearcher struct {
	paths pathList
	rand  *rand.Rand
}

// NewRandomSearcher returns a RandomSearcher drawing from rand.
func NewRandomSearcher(rand *rand.Rand) *RandomSearcher {
	return &RandomSearcher{
		rand: rand,
	}
}

// SelectPath returns a random path.
func (s *RandomSearcher) SelectPath() (PathID, bool) {
	if len(s.paths) == 0 {
		return 0, false
	}
	i := s.rand.Intn(len(s.paths))
	path := s.paths[i]
	s.paths = append(s.paths[:i], s.paths[i+1:]...)
	return path, true
}

// AddPath adds a new path to the searcher.
func (s *RandomSearcher) AddPath(path PathID) {
	s.paths = append(s.paths, path)
}

func (s *RandomSearcher) RemovePath(path PathID) bool { return s.paths.remove(path) }
func (s *RandomSearcher) Len() int                    { return len(s.paths) }

// WeightedSearcher selects paths with probability proportional to the inverse
// of the distance from their parked instruction to the nearest uncovered one.
// Distances come from the last AnalyzeCFG call.
type WeightedSearcher struct {
	paths   pathList
	rand    *rand.Rand
	monitor *InterpreterMonitor
}

// NewWeightedSearcher returns a new instance of WeightedSearcher.
func NewWeightedSearcher(monitor *InterpreterMonitor, rand *rand.Rand) *WeightedSearcher {
	return &WeightedSearcher{
		monitor: monitor,
		rand:    rand,
	}
}

// Weight returns the selection weight of path.
func (s *WeightedSearcher) Weight(path PathID) float64 {
	if !s.monitor.Tracing() {
		return 1
	}
	node := s.monitor.HLTreeNode(path)
	if node == nil {
		return 1
	}
	return pathWeight(s.monitor.Tree().InstructionOf(node))
}

func pathWeight(instr *HighLevelInstruction) float64 {
	if instr.distToUncovered == 0 {
		return 1.0 / 100
	}
	return 1.0 / float64(instr.distToUncovered)
}

// SelectPath returns a path chosen at random by weight.
func (s *WeightedSearcher) SelectPath() (PathID, bool) {
	if len(s.paths) == 0 {
		return 0, false
	}

	weights := make([]float64, len(s.paths))
	var total float64
	for i, path := range s.paths {
		weights[i] = s.Weight(path)
		total += weights[i]
	}

	i, r := 0, s.rand.Float64()*total
	for ; i < len(weights)-1; i++ {
		if r < weights[i] {
			break
		}
		r -= weights[i]
	}

	path := s.paths[i]
	s.paths = append(s.paths[:i], s.paths[i+1:]...)
	return path, true
}

// AddPath adds a new path to the searcher.
func (s *WeightedSearcher) AddPath(path PathID) {
	s.paths = append(s.paths, path)
}

func (s *WeightedSearcher) RemovePath(path PathID) bool { return s.paths.remove(path) }
func (s *WeightedSearcher) Len() int                    { return len(s.paths) }
