package chef

import (
	"sort"
)

// HighLevelBasicBlock is a maximal straight-line run of instructions. Blocks
// are rebuilt from scratch by every AnalyzeCFG call and must not be retained
// across calls.
type HighLevelBasicBlock struct {
	ID     int
	Instrs []InstrID // head first

	Succs []int
	Preds []int

	// Immediate dominator (-1 for the entry block and unreachable blocks) and
	// the full dominator set ordered from the block itself up to the entry.
	IDom       int
	Dominators []int
}

// Head returns the first instruction of the block.
func (b *HighLevelBasicBlock) Head() InstrID { return b.Instrs[0] }

// Tail returns the last instruction of the block.
func (b *HighLevelBasicBlock) Tail() InstrID { return b.Instrs[len(b.Instrs)-1] }

// Dominates returns true if b dominates other.
func (b *HighLevelBasicBlock) Dominates(other *HighLevelBasicBlock) bool {
	for _, id := range other.Dominators {
		if id == b.ID {
			return true
		}
	}
	return false
}

// BlockOf returns the block containing instr from the last AnalyzeCFG call,
// or nil if instr was added afterward.
func (c *HighLevelCFG) BlockOf(instr *HighLevelInstruction) *HighLevelBasicBlock {
	if instr == nil || int(instr.id) >= len(c.blockOf) {
		return nil
	}
	return c.blocks[c.blockOf[instr.id]]
}

// AnalyzeCFG rebuilds basic blocks, the dominator tree, the branch opcode set
// and distances to uncovered instructions from the current edge set. Returns
// whether a new edge was recorded since the previous call and clears the flag.
func (c *HighLevelCFG) AnalyzeCFG() bool {
	c.clearBasicBlocks()
	c.extractBasicBlocks()
	c.computeDominatorTree()
	c.extractBranchOpcodes()
	c.computeDistanceToUncovered()

	changed := c.changed
	c.changed = false

	c.Logger.WithField("instrs", len(c.instrs)).
		WithField("blocks", len(c.blocks)).
		WithField("changed", changed).
		Debug("cfg analyzed")
	return changed
}

func (c *HighLevelCFG) clearBasicBlocks() {
	c.blocks, c.blockOf = nil, nil
}

// isBlockHead returns true if instr must start a new basic block.
func (c *HighLevelCFG) isBlockHead(instr *HighLevelInstruction) bool {
	if instr.id == c.root || len(instr.preds) != 1 {
		return true
	}
	for pred := range instr.preds {
		if len(c.instrs[pred].succs) != 1 {
			return true
		}
	}
	return false
}

func (c *HighLevelCFG) extractBasicBlocks() {
	c.blockOf = make([]int, len(c.instrs))
	for i := range c.blockOf {
		c.blockOf[i] = -1
	}

	// Walk heads in ID order so block numbering is deterministic.
	for _, instr := range c.instrs {
		if c.isBlockHead(instr) {
			c.buildBlock(instr)
		}
	}

	// Straight-line cycles have no head; break each at its lowest ID.
	for _, instr := range c.instrs {
		if c.blockOf[instr.id] == -1 {
			c.buildBlock(instr)
		}
	}

	for _, blk := range c.blocks {
		seen := make(map[int]struct{})
		for _, succ := range sortedIDs(c.instrs[blk.Tail()].succs) {
			id := c.blockOf[succ]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			blk.Succs = append(blk.Succs, id)
			c.blocks[id].Preds = append(c.blocks[id].Preds, blk.ID)
		}
	}
}

func (c *HighLevelCFG) buildBlock(head *HighLevelInstruction) {
	blk := &HighLevelBasicBlock{ID: len(c.blocks), IDom: -1}
	c.blocks = append(c.blocks, blk)

	instr := head
	for {
		blk.Instrs = append(blk.Instrs, instr.id)
		c.blockOf[instr.id] = blk.ID

		if len(instr.succs) != 1 {
			return
		}
		var next *HighLevelInstruction
		for id := range instr.succs {
			next = c.instrs[id]
		}
		if c.blockOf[next.id] != -1 || c.isBlockHead(next) {
			return
		}
		instr = next
	}
}

// computeDominatorTree uses the iterative algorithm of Cooper, Harvey and
// Kennedy over the blocks reachable from the entry block.
func (c *HighLevelCFG) computeDominatorTree() {
	if c.root == NoInstr || len(c.blocks) == 0 {
		return
	}
	entry := c.blockOf[c.root]

	// Reverse postorder from the entry.
	order := make([]int, 0, len(c.blocks))
	visited := make([]bool, len(c.blocks))
	var visit func(int)
	visit = func(id int) {
		visited[id] = true
		for _, succ := range c.blocks[id].Succs {
			if !visited[succ] {
				visit(succ)
			}
		}
		order = append(order, id)
	}
	visit(entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	rpo := make([]int, len(c.blocks))
	for i := range rpo {
		rpo[i] = -1
	}
	for i, id := range order {
		rpo[id] = i
	}

	idom := make([]int, len(c.blocks))
	for i := range idom {
		idom[i] = -1
	}
	idom[entry] = entry

	intersect := func(a, b int) int {
		for a != b {
			for rpo[a] > rpo[b] {
				a = idom[a]
			}
			for rpo[b] > rpo[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, id := range order[1:] {
			newIDom := -1
			for _, pred := range c.blocks[id].Preds {
				if rpo[pred] == -1 || idom[pred] == -1 {
					continue
				}
				if newIDom == -1 {
					newIDom = pred
				} else {
					newIDom = intersect(pred, newIDom)
				}
			}
			if newIDom != -1 && idom[id] != newIDom {
				idom[id] = newIDom
				changed = true
			}
		}
	}

	for _, blk := range c.blocks {
		blk.Dominators = []int{blk.ID}
		if rpo[blk.ID] == -1 || blk.ID == entry {
			continue
		}
		blk.IDom = idom[blk.ID]
		for id := idom[blk.ID]; ; id = idom[id] {
			blk.Dominators = append(blk.Dominators, id)
			if id == entry {
				break
			}
		}
	}
}

// extractBranchOpcodes collects opcodes that lead from a single instruction to
// two or more distinct destinations.
func (c *HighLevelCFG) extractBranchOpcodes() {
	c.branchOpcodes = make(map[Opcode]int)
	for _, instr := range c.instrs {
		dests := make(map[Opcode]int)
		for _, opcode := range instr.succs {
			dests[opcode]++
		}
		for opcode, n := range dests {
			if n > 1 {
				c.branchOpcodes[opcode]++
			}
		}
	}
}

// computeDistanceToUncovered runs a reverse breadth-first search from every
// instruction that no concrete path has executed yet. Instructions that cannot
// reach an uncovered instruction keep a distance of zero.
func (c *HighLevelCFG) computeDistanceToUncovered() {
	visited := make([]bool, len(c.instrs))
	queue := make([]InstrID, 0, len(c.instrs))
	for _, instr := range c.instrs {
		instr.distToUncovered = 0
		if instr.lowLevelPaths == 0 {
			visited[instr.id] = true
			queue = append(queue, instr.id)
		}
	}

	for len(queue) > 0 {
		instr := c.instrs[queue[0]]
		queue = queue[1:]

		for _, pred := range instr.Predecessors() {
			if visited[pred] {
				continue
			}
			visited[pred] = true
			c.instrs[pred].distToUncovered = instr.distToUncovered + 1
			queue = append(queue, pred)
		}
	}
}

// ComputeMinDistance returns the length of the shortest path between a and b,
// ignoring edge direction. Returns -1 if b cannot be reached from a.
func (c *HighLevelCFG) ComputeMinDistance(a, b *HighLevelInstruction) int {
	if a == nil || b == nil {
		return -1
	} else if a.id == b.id {
		return 0
	}

	dist := map[InstrID]int{a.id: 0}
	queue := []InstrID{a.id}
	for len(queue) > 0 {
		instr := c.instrs[queue[0]]
		queue = queue[1:]

		neighbors := instr.Successors()
		neighbors = append(neighbors, instr.Predecessors()...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })

		for _, id := range neighbors {
			if _, ok := dist[id]; ok {
				continue
			}
			dist[id] = dist[instr.id] + 1
			if id == b.id {
				return dist[id]
			}
			queue = append(queue, id)
		}
	}
	return -1
}
