package decomposer

import "sort"

// buildGraph constructs the dependency adjacency map from subtasks,
// dropping (with a caller-supplied warning) any dependency identifier that
// does not name a sibling subtask (spec.md §4.5.1 step 2).
func buildGraph(subtasks []Subtask, warn func(subtaskID, unknownDep string)) Graph {
	ids := make(map[string]struct{}, len(subtasks))
	for _, s := range subtasks {
		ids[s.ID] = struct{}{}
	}

	graph := make(Graph, len(subtasks))
	for _, s := range subtasks {
		deps := make([]string, 0, len(s.Dependencies))
		for _, d := range s.Dependencies {
			if _, ok := ids[d]; ok {
				deps = append(deps, d)
			} else if warn != nil {
				warn(s.ID, d)
			}
		}
		graph[s.ID] = deps
	}
	return graph
}

type color int

const (
	white color = iota
	grey
	black
)

// findCycle runs three-color DFS over graph and returns the node sequence
// of the first cycle it encounters (from the repeated node through the
// node that closed the back edge), or nil if the graph is acyclic.
func findCycle(graph Graph) []string {
	colors := make(map[string]color, len(graph))
	var path []string
	var cycle []string

	ids := sortedKeys(graph)

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = grey
		path = append(path, id)

		deps := graph[id]
		sortedDeps := append([]string(nil), deps...)
		sort.Strings(sortedDeps)

		for _, dep := range sortedDeps {
			switch colors[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case grey:
				// Back edge: dep is an ancestor on the current path.
				start := indexOf(path, dep)
				cycle = append([]string(nil), path[start:]...)
				return true
			}
		}

		path = path[:len(path)-1]
		colors[id] = black
		return false
	}

	for _, id := range ids {
		if colors[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func sortedKeys(graph Graph) []string {
	keys := make([]string, 0, len(graph))
	for k := range graph {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// repairCycle breaks one cycle (a sequence of node ids where each depends
// on the next, wrapping around) by removing the edge into the node with
// the highest in-degree within the cycle. Ties are broken by choosing the
// lexicographically smallest node id among those tied for highest
// in-degree, and, among multiple edges into that node from within the
// cycle, the lexicographically smallest source id. Returns the (target,
// source) pair whose edge was removed.
func repairCycle(graph Graph, cycle []string) (target, source string) {
	inCycle := make(map[string]struct{}, len(cycle))
	for _, id := range cycle {
		inCycle[id] = struct{}{}
	}

	inDegree := make(map[string]int, len(cycle))
	sources := make(map[string][]string, len(cycle))
	for _, id := range cycle {
		for _, dep := range graph[id] {
			if _, ok := inCycle[dep]; ok {
				inDegree[id]++
				sources[id] = append(sources[id], dep)
			}
		}
	}

	best := ""
	bestDegree := -1
	for _, id := range cycle {
		d := inDegree[id]
		if d > bestDegree || (d == bestDegree && id < best) {
			bestDegree = d
			best = id
		}
	}

	srcs := append([]string(nil), sources[best]...)
	sort.Strings(srcs)
	chosenSource := srcs[0]

	filtered := make([]string, 0, len(graph[best]))
	removed := false
	for _, dep := range graph[best] {
		if !removed && dep == chosenSource {
			removed = true
			continue
		}
		filtered = append(filtered, dep)
	}
	graph[best] = filtered

	return best, chosenSource
}

// repairAll detects and repairs cycles until the graph is acyclic,
// invoking onRepair for every edge removed. Bounded by the number of edges
// in the graph to guarantee termination even under a pathological input.
func repairAll(graph Graph, onRepair func(target, source string)) {
	maxIterations := 0
	for _, deps := range graph {
		maxIterations += len(deps)
	}
	maxIterations++

	for i := 0; i < maxIterations; i++ {
		cycle := findCycle(graph)
		if cycle == nil {
			return
		}
		target, source := repairCycle(graph, cycle)
		if onRepair != nil {
			onRepair(target, source)
		}
	}
}

// generations groups graph into generations via Kahn's algorithm
// (spec.md §4.5.2): every identifier in generation k has all its
// dependencies in generations <k, and each generation is sorted for
// determinism. Any node left unprocessed after the loop (a residual cycle,
// which should not occur post-repair) is reported via onResidual.
func generations(graph Graph, onResidual func(ids []string)) [][]string {
	inDegree := make(map[string]int, len(graph))
	for id, deps := range graph {
		inDegree[id] = len(deps)
	}

	processed := make(map[string]struct{}, len(graph))
	var result [][]string

	for {
		var ready []string
		for id, deg := range inDegree {
			if _, done := processed[id]; done {
				continue
			}
			if deg == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			break
		}
		sort.Strings(ready)
		result = append(result, ready)
		for _, id := range ready {
			processed[id] = struct{}{}
		}
		for id, deps := range graph {
			if _, done := processed[id]; done {
				continue
			}
			satisfied := 0
			for _, dep := range deps {
				if _, ok := processed[dep]; ok {
					satisfied++
				}
			}
			inDegree[id] = len(deps) - satisfied
		}
	}

	if len(processed) != len(graph) {
		var residual []string
		for id := range graph {
			if _, done := processed[id]; !done {
				residual = append(residual, id)
			}
		}
		sort.Strings(residual)
		if onResidual != nil {
			onResidual(residual)
		}
	}

	return result
}
