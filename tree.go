package chef

// NodeID is the arena index of a HighLevelTreeNode within its tree.
type NodeID int

// NoNode is returned when a tree node does not exist.
const NoNode NodeID = -1

// HighLevelTreeNode is one position in the execution tree. Each node refers to
// the CFG instruction executed at that position by ID.
type HighLevelTreeNode struct {
	id     NodeID
	parent NodeID
	depth  int
	instr  InstrID

	pathCounter int
	forkCounter int

	// Children deduplicated by the PC of their instruction.
	children map[string]NodeID
	order    []NodeID
}

// ID returns the arena index of the node.
func (n *HighLevelTreeNode) ID() NodeID { return n.id }

// Parent returns the parent node ID or NoNode for the root.
func (n *HighLevelTreeNode) Parent() NodeID { return n.parent }

// Depth returns the number of edges from the root.
func (n *HighLevelTreeNode) Depth() int { return n.depth }

// Instruction returns the ID of the CFG instruction at this position.
func (n *HighLevelTreeNode) Instruction() InstrID { return n.instr }

// PathCounter returns the number of concrete paths that reached this position.
func (n *HighLevelTreeNode) PathCounter() int { return n.pathCounter }

// ForkCounter returns the number of branches spawned while at this position.
func (n *HighLevelTreeNode) ForkCounter() int { return n.forkCounter }

// Children returns child node IDs in creation order.
func (n *HighLevelTreeNode) Children() []NodeID { return n.order }

// HighLevelTree is the per-session execution tree. It shares instructions with
// a HighLevelCFG and updates their counters as paths move through it.
type HighLevelTree struct {
	cfg   *HighLevelCFG
	nodes []*HighLevelTreeNode
}

// NewHighLevelTree returns a tree with a root node at root.
func NewHighLevelTree(cfg *HighLevelCFG, root *HighLevelInstruction) *HighLevelTree {
	t := &HighLevelTree{cfg: cfg}
	t.newNode(NoNode, root)
	return t
}

func (t *HighLevelTree) newNode(parent NodeID, instr *HighLevelInstruction) *HighLevelTreeNode {
	n := &HighLevelTreeNode{
		id:       NodeID(len(t.nodes)),
		parent:   parent,
		instr:    instr.id,
		children: make(map[string]NodeID),
	}
	if parent != NoNode {
		n.depth = t.nodes[parent].depth + 1
	}
	instr.highLevelPaths++
	t.nodes = append(t.nodes, n)
	return n
}

// Root returns the root node or nil after Clear.
func (t *HighLevelTree) Root() *HighLevelTreeNode {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0]
}

// Len returns the number of nodes in the tree.
func (t *HighLevelTree) Len() int { return len(t.nodes) }

// Node returns the node with the given ID. Panic if out of range.
func (t *HighLevelTree) Node(id NodeID) *HighLevelTreeNode {
	assert(id >= 0 && int(id) < len(t.nodes), "tree: node out of range: id=%d n=%d", id, len(t.nodes))
	return t.nodes[id]
}

// InstructionOf returns the CFG instruction at node.
func (t *HighLevelTree) InstructionOf(node *HighLevelTreeNode) *HighLevelInstruction {
	return t.cfg.Instruction(node.instr)
}

// GetOrCreateSuccessor returns the child of node for instr, creating it if
// this is the first time instr follows node.
func (t *HighLevelTree) GetOrCreateSuccessor(node *HighLevelTreeNode, instr *HighLevelInstruction) *HighLevelTreeNode {
	key := instr.pc.Key()
	if id, ok := node.children[key]; ok {
		return t.nodes[id]
	}
	child := t.newNode(node.id, instr)
	node.children[key] = child.id
	node.order = append(node.order, child.id)
	return child
}

// BumpPathCounter records a concrete path reaching node.
func (t *HighLevelTree) BumpPathCounter(node *HighLevelTreeNode) {
	node.pathCounter++
	t.InstructionOf(node).lowLevelPaths++
}

// BumpForkCounter records a branch spawned while at node.
func (t *HighLevelTree) BumpForkCounter(node *HighLevelTreeNode) {
	node.forkCounter++
	t.InstructionOf(node).forkCounter++
}

// DistanceToAncestor returns the number of parent links from node to ancestor,
// or -1 if ancestor is not an ancestor of node.
func (t *HighLevelTree) DistanceToAncestor(node, ancestor *HighLevelTreeNode) int {
	if node == nil || ancestor == nil {
		return -1
	}
	dist := 0
	for id := node.id; id != NoNode; id = t.nodes[id].parent {
		if id == ancestor.id {
			return dist
		}
		dist++
	}
	return -1
}

// Walk calls fn for every node in depth-first preorder. Stops if fn returns false.
func (t *HighLevelTree) Walk(fn func(node *HighLevelTreeNode) bool) {
	if len(t.nodes) == 0 {
		return
	}
	stack := []NodeID{0}
	for len(stack) > 0 {
		node := t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !fn(node) {
			return
		}
		for i := len(node.order) - 1; i >= 0; i-- {
			stack = append(stack, node.order[i])
		}
	}
}

// Clear drops every node. Nothing may hold a NodeID into the tree afterward.
func (t *HighLevelTree) Clear() {
	t.nodes = nil
}
