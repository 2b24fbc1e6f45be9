package ssaguest

import (
	"errors"

	"github.com/benbjohnson/chef"
	"github.com/benbjohnson/chef/replay"
	"golang.org/x/tools/go/ssa"
)

// walkStatus is the outcome of a walked path.
type walkStatus string

const (
	walkRunning   = walkStatus("running")   // has more instructions
	walkFinished  = walkStatus("finished")  // returned
	walkPanicked  = walkStatus("panicked")  // panic reached
	walkTruncated = walkStatus("truncated") // block visit limit hit
)

// frame is the position of a walk inside the function body.
type frame struct {
	block *ssa.BasicBlock
	pc    int
}

// instr returns the current instruction.
func (f *frame) instr() ssa.Instruction {
	if f.block == nil || f.pc < 0 || f.pc >= len(f.block.Instrs) {
		return nil
	}
	return f.block.Instrs[f.pc]
}

// jump moves to the start of dst.
func (f *frame) jump(dst *ssa.BasicBlock) {
	f.block, f.pc = dst, 0
}

// walkState is one path being enumerated.
type walkState struct {
	path      *replay.Path
	frame     frame
	status    walkStatus
	visits    map[int]int
	decisions []byte
}

// fork returns a copy of s as a new path that takes the false edge of the
// current branch.
func (s *walkState) fork(id chef.PathID) *walkState {
	other := &walkState{
		path:      &replay.Path{ID: id},
		frame:     s.frame,
		status:    walkRunning,
		visits:    make(map[int]int, len(s.visits)),
		decisions: make([]byte, len(s.decisions), len(s.decisions)+1),
	}
	for k, v := range s.visits {
		other.visits[k] = v
	}
	copy(other.decisions, s.decisions)
	return other
}

// enter moves s to dst. Returns false if dst was entered too often.
func (s *walkState) enter(dst *ssa.BasicBlock, max int) bool {
	s.visits[dst.Index]++
	if max > 0 && s.visits[dst.Index] > max {
		s.status = walkTruncated
		return false
	}
	s.frame.jump(dst)
	return true
}

func (s *walkState) emit(e replay.Event) {
	s.path.Events = append(s.path.Events, e)
}

// Script enumerates the paths of the function depth-first and returns them
// as a replay script. Forked paths take the false edge of a branch while the
// forking path continues on the true edge.
func (g *Guest) Script(opts Options) (*replay.Script, error) {
	if len(g.fn.Blocks) == 0 {
		return nil, ErrNoBody
	} else if opts.MaxPaths < 0 || opts.MaxBlockVisits < 0 {
		return nil, errors.New("ssaguest: negative bound")
	}

	script := &replay.Script{
		Name:    g.fn.Name(),
		Step:    opts.Step,
		MaxTime: opts.MaxTime,
	}

	root := &walkState{
		path:   &replay.Path{ID: 1},
		status: walkRunning,
		visits: make(map[int]int),
	}
	root.enter(g.fn.Blocks[0], opts.MaxBlockVisits)

	n := 1
	stack := []*walkState{root}
	var done []*walkState
	for len(stack) > 0 {
		state := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for state.status == walkRunning {
			child := g.step(state, opts, n)
			if child != nil {
				n++
				stack = append(stack, child)
			}
		}
		done = append(done, state)
	}

	// Paths are listed by ID so the root comes first.
	script.Paths = make([]replay.Path, len(done))
	for _, state := range done {
		p := state.path
		p.PC = uint64(p.ID) << 32
		p.Inputs = []chef.Binding{{Name: BranchBinding, Value: state.decisions}}
		script.Paths[p.ID-1] = *p
	}

	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}

// step executes the current instruction of state. Returns a new path if the
// instruction forked. n is the number of paths created so far.
func (g *Guest) step(state *walkState, opts Options, n int) *walkState {
	instr := state.frame.instr()
	if instr == nil {
		state.status = walkFinished
		state.emit(replay.Event{End: &replay.End{}})
		return nil
	}

	if u, ok := g.Record(instr); ok {
		state.emit(replay.Event{Update: &u})
	}

	switch instr := instr.(type) {
	case *ssa.If:
		block := instr.Block()

		var child *walkState
		if opts.MaxPaths == 0 || n < opts.MaxPaths {
			child = state.fork(chef.PathID(n + 1))
			child.decisions = append(child.decisions, 0)
			state.emit(replay.Event{Fork: []chef.PathID{child.path.ID}})
			if !child.enter(block.Succs[1], opts.MaxBlockVisits) {
				child.emit(replay.Event{End: &replay.End{}})
			}
		}

		state.decisions = append(state.decisions, 1)
		if !state.enter(block.Succs[0], opts.MaxBlockVisits) {
			state.emit(replay.Event{End: &replay.End{}})
		}
		return child

	case *ssa.Jump:
		if !state.enter(instr.Block().Succs[0], opts.MaxBlockVisits) {
			state.emit(replay.Event{End: &replay.End{}})
		}

	case *ssa.Return:
		state.status = walkFinished
		state.emit(replay.Event{End: &replay.End{}})

	case *ssa.Panic:
		state.status = walkPanicked
		state.emit(replay.Event{End: &replay.End{Error: true}})

	default:
		state.frame.pc++
	}
	return nil
}
