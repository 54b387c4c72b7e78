package graph

import "sort"

// Cycles returns the strongly connected components that contain a cycle,
// using Tarjan's algorithm. Each cycle is rotated to start at its smallest
// specifier and the list is sorted, so results are deterministic. A module
// that imports itself is reported as a cycle of one.
func (g *Graph) Cycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		index    int
		stack    []string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlinks = make(map[string]int)
		sccs     [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.forward[v] {
			w := e.Target
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlinks[v] = min(lowlinks[v], lowlinks[w])
			} else if onStack[w] {
				lowlinks[v] = min(lowlinks[v], indices[w])
			}
		}

		if lowlinks[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	starts := make([]string, 0, len(g.forward))
	for v := range g.forward {
		starts = append(starts, v)
	}
	sort.Strings(starts)
	for _, v := range starts {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}

	var cycles [][]string
	for _, scc := range sccs {
		if len(scc) == 1 && !g.selfLoop(scc[0]) {
			continue
		}
		// Tarjan pops in reverse discovery order.
		for i, j := 0, len(scc)-1; i < j; i, j = i+1, j-1 {
			scc[i], scc[j] = scc[j], scc[i]
		}
		cycles = append(cycles, rotateToMin(scc))
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func (g *Graph) selfLoop(v string) bool {
	for _, e := range g.forward[v] {
		if e.Target == v {
			return true
		}
	}
	return false
}

func rotateToMin(c []string) []string {
	m := 0
	for i := range c {
		if c[i] < c[m] {
			m = i
		}
	}
	return append(append([]string(nil), c[m:]...), c[:m]...)
}
