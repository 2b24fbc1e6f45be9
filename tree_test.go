package chef_test

import (
	"testing"

	"github.com/benbjohnson/chef"
	"github.com/google/go-cmp/cmp"
)

func TestHighLevelTree_GetOrCreateSuccessor(t *testing.T) {
	cfg, root := newCFG()
	tree := chef.NewHighLevelTree(cfg, root)
	if got, exp := root.HighLevelPaths(), 1; got != exp {
		t.Fatalf("root HighLevelPaths()=%d, expected %d", got, exp)
	}

	a := cfg.RecordEdge(root.PC(), pc(1), 1)
	n0 := tree.GetOrCreateSuccessor(tree.Root(), a)
	n1 := tree.GetOrCreateSuccessor(tree.Root(), a)
	if n0 != n1 {
		t.Fatal("expected same child")
	} else if got, exp := a.HighLevelPaths(), 1; got != exp {
		t.Fatalf("HighLevelPaths()=%d, expected %d", got, exp)
	} else if got, exp := tree.Len(), 2; got != exp {
		t.Fatalf("Len()=%d, expected %d", got, exp)
	}

	// The same instruction under a different parent is a new position.
	b := cfg.RecordEdge(pc(1), pc(2), 1)
	n2 := tree.GetOrCreateSuccessor(n0, b)
	n3 := tree.GetOrCreateSuccessor(n2, a)
	if n3 == n0 {
		t.Fatal("expected distinct node")
	} else if got, exp := a.HighLevelPaths(), 2; got != exp {
		t.Fatalf("HighLevelPaths()=%d, expected %d", got, exp)
	} else if got, exp := n3.Depth(), 3; got != exp {
		t.Fatalf("Depth()=%d, expected %d", got, exp)
	}

	if diff := cmp.Diff(tree.Root().Children(), []chef.NodeID{n0.ID()}); diff != "" {
		t.Fatal(diff)
	}
}

func TestHighLevelTree_Counters(t *testing.T) {
	cfg, root := newCFG()
	tree := chef.NewHighLevelTree(cfg, root)
	a := cfg.RecordEdge(root.PC(), pc(1), 1)
	n := tree.GetOrCreateSuccessor(tree.Root(), a)

	tree.BumpPathCounter(n)
	tree.BumpPathCounter(n)
	tree.BumpForkCounter(n)
	if got, exp := n.PathCounter(), 2; got != exp {
		t.Fatalf("PathCounter()=%d, expected %d", got, exp)
	} else if got, exp := a.LowLevelPaths(), 2; got != exp {
		t.Fatalf("LowLevelPaths()=%d, expected %d", got, exp)
	} else if got, exp := n.ForkCounter(), 1; got != exp {
		t.Fatalf("ForkCounter()=%d, expected %d", got, exp)
	} else if got, exp := a.ForkCounter(), 1; got != exp {
		t.Fatalf("instr ForkCounter()=%d, expected %d", got, exp)
	}
}

func TestHighLevelTree_DistanceToAncestor(t *testing.T) {
	cfg, root := newCFG()
	tree := chef.NewHighLevelTree(cfg, root)

	// root -> a -> b, root -> c
	a := tree.GetOrCreateSuccessor(tree.Root(), cfg.RecordEdge(root.PC(), pc(1), 1))
	b := tree.GetOrCreateSuccessor(a, cfg.RecordEdge(pc(1), pc(2), 1))
	c := tree.GetOrCreateSuccessor(tree.Root(), cfg.RecordEdge(root.PC(), pc(3), 1))

	for _, tt := range []struct {
		name           string
		node, ancestor *chef.HighLevelTreeNode
		exp            int
	}{
		{"Self", b, b, 0},
		{"Parent", b, a, 1},
		{"Grandparent", b, tree.Root(), 2},
		{"Unrelated", b, c, -1},
		{"Descendant", a, b, -1},
		{"Nil", b, nil, -1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := tree.DistanceToAncestor(tt.node, tt.ancestor); got != tt.exp {
				t.Fatalf("DistanceToAncestor()=%d, expected %d", got, tt.exp)
			}
		})
	}
}

func TestHighLevelTree_Walk(t *testing.T) {
	cfg, root := newCFG()
	tree := chef.NewHighLevelTree(cfg, root)
	a := tree.GetOrCreateSuccessor(tree.Root(), cfg.RecordEdge(root.PC(), pc(1), 1))
	tree.GetOrCreateSuccessor(a, cfg.RecordEdge(pc(1), pc(2), 1))
	tree.GetOrCreateSuccessor(tree.Root(), cfg.RecordEdge(root.PC(), pc(3), 1))

	var got []string
	tree.Walk(func(n *chef.HighLevelTreeNode) bool {
		got = append(got, tree.InstructionOf(n).PC().String())
		return true
	})
	if diff := cmp.Diff(got, []string{"[]", "[0x1]", "[0x2]", "[0x3]"}); diff != "" {
		t.Fatal(diff)
	}

	tree.Clear()
	if tree.Root() != nil || tree.Len() != 0 {
		t.Fatal("expected empty tree")
	}
}
