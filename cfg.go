package chef

import (
	"sort"

	"github.com/benbjohnson/immutable"
	"github.com/sirupsen/logrus"
)

// InstrID is the arena index of a HighLevelInstruction within its CFG.
type InstrID int

// NoInstr is returned when an instruction does not exist.
const NoInstr InstrID = -1

// HighLevelInstruction is a single position in the interpreted program.
// Instructions are owned by a HighLevelCFG and referenced elsewhere by InstrID.
type HighLevelInstruction struct {
	id        InstrID
	pc        HighLevelPC
	opcode    Opcode
	hasOpcode bool

	// Guest source position. Overwritten by every trace update.
	Location Location

	lowLevelPaths   int
	forkCounter     int
	highLevelPaths  int
	distToUncovered int

	// Adjacency. Successors map to the opcode reported with the edge.
	succs map[InstrID]Opcode
	preds map[InstrID]struct{}
}

func newHighLevelInstruction(id InstrID, pc HighLevelPC) *HighLevelInstruction {
	return &HighLevelInstruction{
		id:    id,
		pc:    pc.Clone(),
		succs: make(map[InstrID]Opcode),
		preds: make(map[InstrID]struct{}),
	}
}

// ID returns the arena index of the instruction.
func (i *HighLevelInstruction) ID() InstrID { return i.id }

// PC returns the high-level program counter identifying the instruction.
func (i *HighLevelInstruction) PC() HighLevelPC { return i.pc }

// Opcode returns the opcode and whether one was ever recorded.
func (i *HighLevelInstruction) Opcode() (Opcode, bool) { return i.opcode, i.hasOpcode }

// LowLevelPaths returns the number of concrete paths that executed the instruction.
func (i *HighLevelInstruction) LowLevelPaths() int { return i.lowLevelPaths }

// ForkCounter returns the number of engine forks that occurred at the instruction.
func (i *HighLevelInstruction) ForkCounter() int { return i.forkCounter }

// HighLevelPaths returns the number of tree nodes referencing the instruction.
func (i *HighLevelInstruction) HighLevelPaths() int { return i.highLevelPaths }

// DistToUncovered returns the distance computed by the last AnalyzeCFG call.
func (i *HighLevelInstruction) DistToUncovered() int { return i.distToUncovered }

// Successors returns the successor IDs in ascending order.
func (i *HighLevelInstruction) Successors() []InstrID {
	return sortedIDs(i.succs)
}

// Predecessors returns the predecessor IDs in ascending order.
func (i *HighLevelInstruction) Predecessors() []InstrID {
	a := make([]InstrID, 0, len(i.preds))
	for id := range i.preds {
		a = append(a, id)
	}
	sort.Slice(a, func(x, y int) bool { return a[x] < a[y] })
	return a
}

// HasSuccessor returns true if an edge to id was recorded.
func (i *HighLevelInstruction) HasSuccessor(id InstrID) bool {
	_, ok := i.succs[id]
	return ok
}

func sortedIDs(m map[InstrID]Opcode) []InstrID {
	a := make([]InstrID, 0, len(m))
	for id := range m {
		a = append(a, id)
	}
	sort.Slice(a, func(x, y int) bool { return a[x] < a[y] })
	return a
}

// HighLevelCFG is the incrementally discovered control-flow graph of the
// interpreted program. Edges are only ever added; analysis results are
// rebuilt from scratch by AnalyzeCFG.
type HighLevelCFG struct {
	changed bool
	root    InstrID

	instrs []*HighLevelInstruction
	index  *immutable.SortedMap // HighLevelPC -> InstrID

	// Derived by AnalyzeCFG.
	blocks        []*HighLevelBasicBlock
	blockOf       []int
	branchOpcodes map[Opcode]int

	Logger logrus.FieldLogger
}

// NewHighLevelCFG returns an empty CFG.
func NewHighLevelCFG() *HighLevelCFG {
	return &HighLevelCFG{
		root:          NoInstr,
		index:         immutable.NewSortedMap(&pcComparer{}),
		branchOpcodes: make(map[Opcode]int),
		Logger:        logrus.StandardLogger(),
	}
}

// Changed returns true if a new edge was recorded since the last AnalyzeCFG.
func (c *HighLevelCFG) Changed() bool { return c.changed }

// Len returns the number of instructions.
func (c *HighLevelCFG) Len() int { return len(c.instrs) }

// Root returns the synthetic root instruction or nil if none was recorded.
func (c *HighLevelCFG) Root() *HighLevelInstruction {
	if c.root == NoInstr {
		return nil
	}
	return c.instrs[c.root]
}

// Instruction returns the instruction with the given ID. Panic if out of range.
func (c *HighLevelCFG) Instruction(id InstrID) *HighLevelInstruction {
	assert(id >= 0 && int(id) < len(c.instrs), "cfg: instruction out of range: id=%d n=%d", id, len(c.instrs))
	return c.instrs[id]
}

// Lookup returns the instruction for pc, if it exists.
func (c *HighLevelCFG) Lookup(pc HighLevelPC) (*HighLevelInstruction, bool) {
	v, ok := c.index.Get(pc)
	if !ok {
		return nil, false
	}
	return c.instrs[v.(InstrID)], true
}

// Instructions returns all instructions sorted by PC.
func (c *HighLevelCFG) Instructions() []*HighLevelInstruction {
	a := make([]*HighLevelInstruction, 0, len(c.instrs))
	itr := c.index.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			return a
		}
		a = append(a, c.instrs[v.(InstrID)])
	}
}

// RecordNode returns the instruction for pc, creating it with no opcode and
// no edges if absent. The first recorded node becomes the synthetic root.
func (c *HighLevelCFG) RecordNode(pc HighLevelPC) *HighLevelInstruction {
	instr := c.getOrCreate(pc)
	if c.root == NoInstr {
		c.root = instr.id
	}
	return instr
}

// RecordEdge records a control transfer from source to dest. The destination
// keeps the first opcode ever recorded for it. Returns the destination.
func (c *HighLevelCFG) RecordEdge(source, dest HighLevelPC, opcode Opcode) *HighLevelInstruction {
	src := c.getOrCreate(source)
	dst := c.getOrCreate(dest)

	if !dst.hasOpcode {
		dst.opcode, dst.hasOpcode = opcode, true
	} else if dst.opcode != opcode {
		c.Logger.WithFields(logrus.Fields{
			"pc":       dst.pc.String(),
			"opcode":   dst.opcode,
			"reported": opcode,
		}).Debug("opcode mismatch, keeping first")
	}

	if _, ok := src.succs[dst.id]; !ok {
		src.succs[dst.id] = opcode
		dst.preds[src.id] = struct{}{}
		c.changed = true
	}
	return dst
}

func (c *HighLevelCFG) getOrCreate(pc HighLevelPC) *HighLevelInstruction {
	if instr, ok := c.Lookup(pc); ok {
		return instr
	}
	instr := newHighLevelInstruction(InstrID(len(c.instrs)), pc)
	c.instrs = append(c.instrs, instr)
	c.index = c.index.Set(instr.pc, instr.id)
	return instr
}

// IsBranchInstruction returns true if the instruction's opcode was found to
// branch by the last AnalyzeCFG call.
func (c *HighLevelCFG) IsBranchInstruction(instr *HighLevelInstruction) bool {
	if instr == nil || !instr.hasOpcode {
		return false
	}
	return c.branchOpcodes[instr.opcode] > 0
}

// BranchOpcodes returns the branch opcodes found by the last AnalyzeCFG call,
// mapped to the number of fan-outs observed for each.
func (c *HighLevelCFG) BranchOpcodes() map[Opcode]int {
	m := make(map[Opcode]int, len(c.branchOpcodes))
	for k, v := range c.branchOpcodes {
		m[k] = v
	}
	return m
}

// BasicBlocks returns the blocks built by the last AnalyzeCFG call.
func (c *HighLevelCFG) BasicBlocks() []*HighLevelBasicBlock { return c.blocks }

// Clear drops all instructions and derived analysis.
func (c *HighLevelCFG) Clear() {
	c.clearBasicBlocks()
	c.instrs = nil
	c.index = immutable.NewSortedMap(&pcComparer{})
	c.branchOpcodes = make(map[Opcode]int)
	c.root = NoInstr
	c.changed = false
}
