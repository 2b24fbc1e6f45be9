package chef_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/benbjohnson/chef"
)

func TestDumpTree(t *testing.T) {
	cfg, root := newCFG()
	tree := chef.NewHighLevelTree(cfg, root)
	tree.BumpPathCounter(tree.Root())
	a := tree.GetOrCreateSuccessor(tree.Root(), cfg.RecordEdge(root.PC(), pc(1), 1))
	tree.GetOrCreateSuccessor(tree.Root(), cfg.RecordEdge(root.PC(), pc(2), 1))

	var buf bytes.Buffer
	if err := chef.DumpTree(&buf, tree, a.ID()); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	for _, exp := range []string{"digraph", "[]", "[0x1]", "[0x2]", `color="red"`, `shape="box"`, "paths=1", "paths=0"} {
		if !strings.Contains(s, exp) {
			t.Fatalf("expected %q in:\n%s", exp, s)
		}
	}
	if got, exp := strings.Count(s, "->"), 2; got != exp {
		t.Fatalf("edges=%d, expected %d", got, exp)
	}
}

func TestDumpCFG(t *testing.T) {
	cfg, root := newCFG()
	cfg.RecordEdge(root.PC(), pc(1), 1)
	cfg.RecordEdge(pc(1), pc(2), 2)
	cfg.RecordEdge(pc(1), pc(3), 2)
	cfg.AnalyzeCFG()

	var buf bytes.Buffer
	if err := chef.DumpCFG(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if got, exp := len(cfg.BasicBlocks()), 3; got != exp {
		t.Fatalf("blocks=%d, expected %d", got, exp)
	}
	for _, exp := range []string{"block 0", "block 1", "block 2", `style="dashed"`, `\l`, "[0x1] op=1", "op=2", " *"} {
		if !strings.Contains(s, exp) {
			t.Fatalf("expected %q in:\n%s", exp, s)
		}
	}

	// Two successor edges from the entry block, each mirrored by a dashed
	// dominator edge.
	if got, exp := strings.Count(s, "->"), 4; got != exp {
		t.Fatalf("edges=%d, expected %d", got, exp)
	} else if got, exp := strings.Count(s, `style="dashed"`), 2; got != exp {
		t.Fatalf("dashed edges=%d, expected %d", got, exp)
	}
}
