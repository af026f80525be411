// Package pather implements a generic best-first (A*) search over dense
// integer states. Callers supply adjacency-with-cost and a heuristic; the
// pather neither knows nor cares what a state represents.
package pather

import (
	"container/heap"
	"errors"
)

// ErrNoSolution is returned by Solve when no route exists between the
// requested states.
var ErrNoSolution = errors.New("pather: no solution")

// MaxIterations bounds a single Solve call. A search that expands this many
// nodes without reaching the goal is treated as unsolvable.
const MaxIterations = 7000

// Solutions are memoized per (start, end) pair until Reset, so callers
// whose edge costs depend on cached world state MUST Reset the pather
// whenever that state changes.
const maxCachedSolutions = 256

// StateCost is one reachable neighbor and the cost of the edge to it.
type StateCost struct {
	State int
	Cost  float64
}

// Graph supplies the search callbacks.
type Graph interface {
	// AdjacentCost returns the neighbors of state with non-negative
	// edge costs. Unreachable neighbors are simply omitted.
	AdjacentCost(state int) []StateCost
	// LeastCostEstimate returns an admissible lower bound on the cost
	// from start to end.
	LeastCostEstimate(start, end int) float64
}

type solution struct {
	path []int
	cost float64
	err  error
}

// Pather runs A* over a Graph and memoizes results.
type Pather struct {
	graph Graph
	cache map[[2]int]solution
}

// New creates a Pather for the given graph.
func New(g Graph) *Pather {
	return &Pather{
		graph: g,
		cache: make(map[[2]int]solution),
	}
}

// Solve finds the cheapest path from start to end, inclusive of both.
// Returns ErrNoSolution when the goal is unreachable. Results, including
// failures, are served from cache until Reset.
func (p *Pather) Solve(start, end int) ([]int, float64, error) {
	if start == end {
		return []int{start}, 0, nil
	}

	key := [2]int{start, end}
	if s, ok := p.cache[key]; ok {
		return s.path, s.cost, s.err
	}

	path, cost, err := p.search(start, end)
	if len(p.cache) < maxCachedSolutions {
		p.cache[key] = solution{path: path, cost: cost, err: err}
	}
	return path, cost, err
}

// Reset drops every memoized solution. Must be called whenever the graph's
// costs may have changed.
func (p *Pather) Reset() {
	clear(p.cache)
}

// node is one A* search node.
type node struct {
	state  int
	parent *node
	gCost  float64 // actual cost from start
	fCost  float64 // gCost + heuristic
	index  int     // heap index
}

func (p *Pather) search(start, end int) ([]int, float64, error) {
	first := &node{state: start}
	first.fCost = p.graph.LeastCostEstimate(start, end)

	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, first)

	closed := make(map[int]struct{}, 64)

	for range MaxIterations {
		if open.Len() == 0 {
			return nil, 0, ErrNoSolution
		}

		current := heap.Pop(open).(*node)
		if current.state == end {
			return rebuild(current), current.gCost, nil
		}

		if _, seen := closed[current.state]; seen {
			continue
		}
		closed[current.state] = struct{}{}

		for _, adj := range p.graph.AdjacentCost(current.state) {
			if _, seen := closed[adj.State]; seen {
				continue
			}
			next := &node{
				state:  adj.State,
				parent: current,
				gCost:  current.gCost + adj.Cost,
			}
			next.fCost = next.gCost + p.graph.LeastCostEstimate(adj.State, end)
			heap.Push(open, next)
		}
	}

	return nil, 0, ErrNoSolution
}

// rebuild walks parent links back to the start and reverses.
func rebuild(n *node) []int {
	path := make([]int, 0, 32)
	for ; n != nil; n = n.parent {
		path = append(path, n.state)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// nodeHeap is the A* open list (min-heap by fCost).
type nodeHeap []*node

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].fCost < h[j].fCost }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *nodeHeap) Push(x any)        { n := x.(*node); n.index = len(*h); *h = append(*h, n) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	nd := old[n-1]
	old[n-1] = nil // GC
	nd.index = -1
	*h = old[:n-1]
	return nd
}
