package graph

import (
	"sort"

	"github.com/polisai/archextract/pkg/domain"
)

// tarjanState holds the DFS bookkeeping for one cycle search.
type tarjanState struct {
	g         *Graph
	index     int
	nodeIndex map[string]int
	lowlink   map[string]int
	onStack   map[string]bool
	stack     []string
	cycles    [][]string
	stopFirst bool
	done      bool
}

// FindCycles returns the strongly connected components with at least two
// nodes, using Tarjan's algorithm in O(V+E). Members of each component are
// listed in DFS discovery order; components are listed in completion order.
// With domain.CycleFirst the search stops at the first component found.
func (g *Graph) FindCycles(mode domain.CycleMode) [][]string {
	state := &tarjanState{
		g:         g,
		nodeIndex: make(map[string]int, len(g.order)),
		lowlink:   make(map[string]int, len(g.order)),
		onStack:   make(map[string]bool, len(g.order)),
		stopFirst: mode == domain.CycleFirst,
	}

	for _, id := range g.order {
		if state.done {
			break
		}
		if _, visited := state.nodeIndex[id]; !visited {
			state.strongConnect(id)
		}
	}
	return state.cycles
}

func (s *tarjanState) strongConnect(v string) {
	s.nodeIndex[v] = s.index
	s.lowlink[v] = s.index
	s.index++
	s.stack = append(s.stack, v)
	s.onStack[v] = true

	for _, w := range s.g.Successors(v) {
		if _, visited := s.nodeIndex[w]; !visited {
			s.strongConnect(w)
			if s.done {
				return
			}
			if s.lowlink[w] < s.lowlink[v] {
				s.lowlink[v] = s.lowlink[w]
			}
		} else if s.onStack[w] {
			if s.nodeIndex[w] < s.lowlink[v] {
				s.lowlink[v] = s.nodeIndex[w]
			}
		}
	}

	if s.lowlink[v] != s.nodeIndex[v] {
		return
	}

	var scc []string
	for {
		w := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.onStack[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	if len(scc) < 2 {
		return
	}

	sort.Slice(scc, func(i, j int) bool { return s.nodeIndex[scc[i]] < s.nodeIndex[scc[j]] })
	s.cycles = append(s.cycles, scc)
	if s.stopFirst {
		s.done = true
	}
}
