package chef

// ForkID is the arena index of a ForkPoint within its tree.
type ForkID int

// NoFork is returned when a fork point does not exist.
const NoFork ForkID = -1

// ForkPoint records one engine fork. Its children are fixed at construction,
// one per branch produced by the fork, and are filled in as branches fork again.
type ForkPoint struct {
	id     ForkID
	parent ForkID
	index  int // branch index within parent
	depth  int

	PC   uint64 // low-level program counter at fork time
	Node NodeID // active tree node at fork time

	children []ForkID
}

// ID returns the arena index of the fork point.
func (p *ForkPoint) ID() ForkID { return p.id }

// Parent returns the parent fork point or NoFork for the root.
func (p *ForkPoint) Parent() ForkID { return p.parent }

// Index returns the branch of the parent this fork point hangs off.
func (p *ForkPoint) Index() int { return p.index }

// Depth returns the number of forks between the root and p.
func (p *ForkPoint) Depth() int { return p.depth }

// Size returns the number of branches of the fork.
func (p *ForkPoint) Size() int { return len(p.children) }

// Child returns the fork point at branch index, or NoFork if that branch has
// not forked again.
func (p *ForkPoint) Child(index int) ForkID {
	assert(index >= 0 && index < len(p.children), "fork: branch out of range: index=%d size=%d", index, len(p.children))
	return p.children[index]
}

// ForkTree is the per-session tree of fork points.
type ForkTree struct {
	points []*ForkPoint
}

// NewForkTree returns an empty fork tree.
func NewForkTree() *ForkTree {
	return &ForkTree{}
}

// NewRoot creates the root fork point. The tree must be empty.
func (t *ForkTree) NewRoot(pc uint64, node NodeID, size int) *ForkPoint {
	assert(len(t.points) == 0, "fork: root already exists")
	return t.newPoint(NoFork, 0, pc, node, size)
}

// NewChild creates a fork point on branch index of parent.
func (t *ForkTree) NewChild(parent *ForkPoint, index int, pc uint64, node NodeID, size int) *ForkPoint {
	assert(index >= 0 && index < len(parent.children), "fork: branch out of range: index=%d size=%d", index, len(parent.children))
	assert(parent.children[index] == NoFork, "fork: branch already forked: id=%d index=%d", parent.id, index)
	p := t.newPoint(parent.id, index, pc, node, size)
	p.depth = parent.depth + 1
	parent.children[index] = p.id
	return p
}

func (t *ForkTree) newPoint(parent ForkID, index int, pc uint64, node NodeID, size int) *ForkPoint {
	assert(size > 0, "fork: invalid size: %d", size)
	p := &ForkPoint{
		id:       ForkID(len(t.points)),
		parent:   parent,
		index:    index,
		PC:       pc,
		Node:     node,
		children: make([]ForkID, size),
	}
	for i := range p.children {
		p.children[i] = NoFork
	}
	t.points = append(t.points, p)
	return p
}

// Root returns the root fork point or nil if the tree is empty.
func (t *ForkTree) Root() *ForkPoint {
	if len(t.points) == 0 {
		return nil
	}
	return t.points[0]
}

// Point returns the fork point with the given ID. Panic if out of range.
func (t *ForkTree) Point(id ForkID) *ForkPoint {
	assert(id >= 0 && int(id) < len(t.points), "fork: point out of range: id=%d n=%d", id, len(t.points))
	return t.points[id]
}

// Len returns the number of fork points.
func (t *ForkTree) Len() int { return len(t.points) }

// Clear drops every fork point.
func (t *ForkTree) Clear() {
	t.points = nil
}
