package chef_test

import (
	"math/rand"
	"testing"

	"github.com/benbjohnson/chef"
	"github.com/google/go-cmp/cmp"
)

// drain selects every path from s.
func drain(s chef.Searcher) []chef.PathID {
	var a []chef.PathID
	for {
		path, ok := s.SelectPath()
		if !ok {
			return a
		}
		a = append(a, path)
	}
}

func TestSearcher(t *testing.T) {
	for _, tt := range []struct {
		name string
		s    chef.Searcher
		exp  []chef.PathID
	}{
		{"DFS", chef.NewDFSSearcher(), []chef.PathID{4, 2, 1}},
		{"BFS", chef.NewBFSSearcher(), []chef.PathID{1, 2, 4}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []chef.PathID{1, 2, 3, 4} {
				tt.s.AddPath(path)
			}
			if !tt.s.RemovePath(3) {
				t.Fatal("expected removal")
			} else if tt.s.RemovePath(3) {
				t.Fatal("unexpected second removal")
			} else if got, exp := tt.s.Len(), 3; got != exp {
				t.Fatalf("Len()=%d, expected %d", got, exp)
			}
			if diff := cmp.Diff(drain(tt.s), tt.exp); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestRandomSearcher(t *testing.T) {
	s := chef.NewRandomSearcher(rand.New(rand.NewSource(0)))
	for _, path := range []chef.PathID{1, 2, 3, 4, 5} {
		s.AddPath(path)
	}
	s.RemovePath(5)

	seen := make(map[chef.PathID]bool)
	for _, path := range drain(s) {
		seen[path] = true
	}
	if diff := cmp.Diff(seen, map[chef.PathID]bool{1: true, 2: true, 3: true, 4: true}); diff != "" {
		t.Fatal(diff)
	}
}

func TestWeightedSearcher(t *testing.T) {
	e, m := newMonitor()
	m.StartTrace(1)

	// Park path 2 next to an uncovered instruction and path 3 far from it.
	//   root -> 1 -> 2 -> 3 -> 4 (uncovered)
	spawned := e.Fork(1, 1)
	for _, v := range []uint32{1, 2, 3} {
		m.DoUpdateHLPC(1, pc(v), 1, "a.py", "f", int(v))
	}
	spawned = append(spawned, e.Fork(1, 1)...)
	m.CFG().RecordEdge(pc(3), pc(4), 1)
	m.CFG().AnalyzeCFG()

	s := chef.NewWeightedSearcher(m, rand.New(rand.NewSource(0)))
	if got, exp := s.Weight(spawned[0]), 1.0/4; got != exp {
		t.Fatalf("Weight(far)=%v, expected %v", got, exp)
	} else if got, exp := s.Weight(spawned[1]), 1.0; got != exp {
		t.Fatalf("Weight(near)=%v, expected %v", got, exp)
	} else if got, exp := s.Weight(99), 1.0; got != exp {
		t.Fatalf("Weight(unknown)=%v, expected %v", got, exp)
	}

	counts := make(map[chef.PathID]int)
	for i := 0; i < 1000; i++ {
		s.AddPath(spawned[0])
		s.AddPath(spawned[1])
		path, ok := s.SelectPath()
		if !ok {
			t.Fatal("expected path")
		}
		counts[path]++
		s.RemovePath(spawned[0])
		s.RemovePath(spawned[1])
	}
	if counts[spawned[1]] < 3*counts[spawned[0]] {
		t.Fatalf("unexpected distribution: %v", counts)
	}
	if _, ok := s.SelectPath(); ok {
		t.Fatal("expected empty searcher")
	}
}
