// Package ssaguest runs Go functions in SSA form as a chef guest.
//
// Each SSA instruction of a function becomes a high-level instruction whose
// PC encodes its basic block and its index in the block. The guest enumerates
// the paths of a function by forking at every conditional branch and records
// them as a replay script.
package ssaguest

import (
	"errors"
	"fmt"
	"go/token"
	"path/filepath"
	"time"

	"github.com/benbjohnson/chef"
	"github.com/benbjohnson/chef/replay"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

var (
	ErrFunctionNotFound = errors.New("ssaguest: function not found")
	ErrNoBody           = errors.New("ssaguest: function has no body")
)

// Opcodes reported for SSA instructions.
const (
	OpIf     chef.Opcode = 1
	OpJump   chef.Opcode = 2
	OpReturn chef.Opcode = 3
	OpPanic  chef.Opcode = 4
	OpCall   chef.Opcode = 5
	OpBinOp  chef.Opcode = 6
	OpUnOp   chef.Opcode = 7
	OpPhi    chef.Opcode = 8
	OpStore  chef.Opcode = 9
	OpAlloc  chef.Opcode = 10
	OpOther  chef.Opcode = 0x100
)

// Opcode returns the opcode of instr.
func Opcode(instr ssa.Instruction) chef.Opcode {
	switch instr.(type) {
	case *ssa.If:
		return OpIf
	case *ssa.Jump:
		return OpJump
	case *ssa.Return:
		return OpReturn
	case *ssa.Panic:
		return OpPanic
	case *ssa.Call:
		return OpCall
	case *ssa.BinOp:
		return OpBinOp
	case *ssa.UnOp:
		return OpUnOp
	case *ssa.Phi:
		return OpPhi
	case *ssa.Store:
		return OpStore
	case *ssa.Alloc:
		return OpAlloc
	default:
		return OpOther
	}
}

// Guest maps the instructions of a single function to trace updates.
type Guest struct {
	fn    *ssa.Function
	index map[ssa.Instruction]int
	pos   map[ssa.Instruction]token.Position
}

// NewGuest returns a guest for fn.
func NewGuest(fn *ssa.Function) *Guest {
	g := &Guest{
		fn:    fn,
		index: make(map[ssa.Instruction]int),
		pos:   make(map[ssa.Instruction]token.Position),
	}

	// Instructions without a position inherit the last one in their block.
	fset := fn.Prog.Fset
	for _, blk := range fn.Blocks {
		last := fn.Pos()
		for i, instr := range blk.Instrs {
			g.index[instr] = i
			if p := instr.Pos(); p.IsValid() {
				last = p
			}
			g.pos[instr] = TrimPosition(fset.Position(last))
		}
	}
	return g
}

// Func returns the underlying function.
func (g *Guest) Func() *ssa.Function { return g.fn }

// PC returns the high-level program counter of instr.
func (g *Guest) PC(instr ssa.Instruction) chef.HighLevelPC {
	return chef.HighLevelPC{uint32(instr.Block().Index)<<16 | uint32(g.index[instr])}
}

// Record returns the trace update reported when instr executes. Returns false
// for instructions that carry no semantics, such as debug references.
func (g *Guest) Record(instr ssa.Instruction) (replay.Update, bool) {
	if _, ok := instr.(*ssa.DebugRef); ok {
		return replay.Update{}, false
	}

	pos := g.pos[instr]
	return replay.Update{
		PC:       g.PC(instr),
		Opcode:   Opcode(instr),
		File:     pos.Filename,
		Function: g.fn.Name(),
		Line:     pos.Line,
	}, true
}

// TrimPosition returns a position with just the base filename and line number.
func TrimPosition(pos token.Position) token.Position {
	if !pos.IsValid() {
		return pos
	}
	pos.Filename = filepath.Base(pos.Filename)
	pos.Column = 0
	return pos
}

// LoadFunction loads the packages matching pattern, builds them in SSA form
// and returns the package-level function with the given name.
func LoadFunction(pattern, name string) (*ssa.Function, error) {
	initial, err := packages.Load(&packages.Config{
		Mode: packages.LoadAllSyntax,
	}, pattern)
	if err != nil {
		return nil, err
	} else if packages.PrintErrors(initial) > 0 {
		return nil, fmt.Errorf("packages contain errors")
	}

	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	for i, pkg := range pkgs {
		if pkg == nil {
			return nil, fmt.Errorf("cannot build SSA for package %s", initial[i])
		}
		pkg.SetDebugMode(true)
	}
	prog.Build()

	for _, pkg := range pkgs {
		if m := pkg.Members[name]; m == nil {
			continue
		} else if fn, ok := m.(*ssa.Function); !ok {
			return nil, fmt.Errorf("member %q is %T, not a function", name, m)
		} else if len(fn.Blocks) == 0 {
			return nil, ErrNoBody
		} else {
			return fn, nil
		}
	}
	return nil, ErrFunctionNotFound
}

// Options bounds path enumeration.
type Options struct {
	// Maximum number of paths. Branches beyond it follow the true edge only.
	MaxPaths int

	// Number of times a path may enter the same block before it is cut.
	MaxBlockVisits int

	// Virtual time per event and session limit of the produced script.
	Step    time.Duration
	MaxTime time.Duration
}

// DefaultOptions returns the default enumeration bounds.
func DefaultOptions() Options {
	return Options{
		MaxPaths:       64,
		MaxBlockVisits: 3,
		Step:           time.Millisecond,
	}
}

// BranchBinding is the name of the input that records branch decisions.
// Each byte is 1 for a taken true edge and 0 for a false edge.
const BranchBinding = "branch"
