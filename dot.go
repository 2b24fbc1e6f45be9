package chef

import (
	"fmt"
	"io"
	"strings"

	"github.com/emicklei/dot"
)

// Fill colors for tree nodes by path count.
var pathCountColors = []string{"white", "lightblue", "lightskyblue", "deepskyblue", "dodgerblue", "royalblue"}

// DumpTree writes the execution tree as a DOT graph. Leaves are boxed and the
// node at active, if any, is outlined in red.
func DumpTree(w io.Writer, tree *HighLevelTree, active NodeID) error {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "TB")

	nodes := make(map[NodeID]dot.Node, tree.Len())
	tree.Walk(func(n *HighLevelTreeNode) bool {
		instr := tree.InstructionOf(n)
		label := fmt.Sprintf("%s\n%s\npaths=%d forks=%d", instr.pc, instr.Location, n.pathCounter, n.forkCounter)

		gn := g.Node(fmt.Sprintf("n%d", n.id)).
			Label(label).
			Attr("style", "filled").
			Attr("fillcolor", pathCountColors[min(n.pathCounter, len(pathCountColors)-1)])
		if len(n.order) == 0 {
			gn = gn.Box()
		}
		if n.id == active {
			gn = gn.Attr("color", "red").Attr("penwidth", "2")
		}
		nodes[n.id] = gn

		if n.parent != NoNode {
			g.Edge(nodes[n.parent], gn)
		}
		return true
	})

	_, err := io.WriteString(w, g.String())
	return err
}

// DumpCFG writes the CFG as a DOT graph with one node per basic block from
// the last AnalyzeCFG call. Immediate dominator edges are drawn dashed.
func DumpCFG(w io.Writer, cfg *HighLevelCFG) error {
	g := dot.NewGraph(dot.Directed)

	blocks := cfg.BasicBlocks()
	nodes := make([]dot.Node, len(blocks))
	for i, blk := range blocks {
		var sb strings.Builder
		fmt.Fprintf(&sb, `"block %d\l`, blk.ID)
		for _, id := range blk.Instrs {
			instr := cfg.Instruction(id)
			opcode, _ := instr.Opcode()
			fmt.Fprintf(&sb, "%s op=%d low=%d high=%d dist=%d %s",
				instr.pc, opcode, instr.lowLevelPaths, instr.highLevelPaths, instr.distToUncovered,
				strings.ReplaceAll(instr.Location.String(), `"`, `\"`))
			if cfg.IsBranchInstruction(instr) {
				sb.WriteString(" *")
			}
			sb.WriteString(`\l`)
		}
		sb.WriteByte('"')

		// Literal keeps the left-justified line breaks unescaped.
		nodes[i] = g.Node(fmt.Sprintf("b%d", blk.ID)).Attr("label", dot.Literal(sb.String())).Box()
		if blk.Head() == cfg.root {
			nodes[i] = nodes[i].Attr("peripheries", "2")
		}
	}

	for _, blk := range blocks {
		for _, succ := range blk.Succs {
			g.Edge(nodes[blk.ID], nodes[succ])
		}
		if blk.IDom != -1 {
			g.Edge(nodes[blk.IDom], nodes[blk.ID]).Dashed().Attr("color", "gray")
		}
	}

	_, err := io.WriteString(w, g.String())
	return err
}
