package pipeline

import (
	"container/heap"
)

// Plan is a validated stage graph with a fixed execution order.
type Plan struct {
	stages     []Stage
	index      map[string]int
	dependents [][]int // dependency index -> dependent indices, ascending
	indeg      []int
	order      []int
}

// Resolve validates stages and computes a deterministic topological order.
// Ties between ready stages are broken by declaration order.
func Resolve(stages []Stage) (*Plan, error) {
	if len(stages) == 0 {
		return nil, &InvalidStageError{Msg: "no stages declared"}
	}

	index := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.Name == "" {
			return nil, &InvalidStageError{Msg: "stage name is required"}
		}
		if _, exists := index[s.Name]; exists {
			return nil, &InvalidStageError{Stage: s.Name, Msg: "duplicate stage name"}
		}
		if s.Compute == nil {
			return nil, &InvalidStageError{Stage: s.Name, Msg: "compute function is required"}
		}
		index[s.Name] = i
	}

	dependents := make([][]int, len(stages))
	indeg := make([]int, len(stages))
	for i, s := range stages {
		seen := make(map[string]struct{}, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}

			j, ok := index[dep]
			if !ok {
				return nil, &UnknownDependencyError{Stage: s.Name, Dependency: dep}
			}
			dependents[j] = append(dependents[j], i)
			indeg[i]++
		}
	}

	p := &Plan{
		stages:     copyStages(stages),
		index:      index,
		dependents: dependents,
		indeg:      indeg,
	}

	p.order = p.topoOrder()
	if len(p.order) != len(stages) {
		return nil, &CycleError{Path: p.findCycle()}
	}
	return p, nil
}

// Order returns stage names in execution order.
func (p *Plan) Order() []string {
	names := make([]string, 0, len(p.order))
	for _, i := range p.order {
		names = append(names, p.stages[i].Name)
	}
	return names
}

// Dependencies returns the declared dependencies of a stage.
func (p *Plan) Dependencies(name string) ([]string, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	deps := make([]string, len(p.stages[i].DependsOn))
	copy(deps, p.stages[i].DependsOn)
	return deps, true
}

// Len reports the number of stages in the plan.
func (p *Plan) Len() int { return len(p.stages) }

func copyStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		deps := make([]string, len(s.DependsOn))
		copy(deps, s.DependsOn)
		out[i] = Stage{Name: s.Name, DependsOn: deps, Compute: s.Compute}
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm with a min-heap of declaration indices.
// A result shorter than the stage count means a cycle exists.
func (p *Plan) topoOrder() []int {
	indeg := make([]int, len(p.indeg))
	copy(indeg, p.indeg)

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range p.dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle walks dependency edges depth-first in declaration order and
// returns the first cycle it closes, e.g. [a b a].
func (p *Plan) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(p.stages))
	stack := make([]int, 0, len(p.stages))
	var cycle []int

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range p.dependents[u] {
			switch color[v] {
			case white:
				if visit(v) {
					return true
				}
			case gray:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == v {
						cycle = append(cycle, stack[k:]...)
						cycle = append(cycle, v)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}

	for i := range p.stages {
		if color[i] == white && visit(i) {
			break
		}
	}

	names := make([]string, 0, len(cycle))
	for _, i := range cycle {
		names = append(names, p.stages[i].Name)
	}
	return names
}
