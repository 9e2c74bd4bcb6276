package depgraph

import "sort"

// graph is the plain adjacency-list reference graph Build constructs
// from a schema: one node per entity, one edge per in-scope reference
// field.
type graph struct {
	names []string // sorted entity names
	edges map[string][]Edge
}

// tarjanSCCs computes the graph's strongly-connected components via
// Tarjan's algorithm, then orders the resulting condensation so that
// every entity is emitted only after all entities it references
// (targets come before referrers — e.g. contact before account),
// breaking ties deterministically by ascending entity name (§4.6
// Determinism). Each returned component is itself name-sorted.
func (g *graph) tarjanSCCs() [][]string {
	t := &tarjanState{
		g:       g,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, n := range g.names {
		if _, visited := t.index[n]; !visited {
			t.strongconnect(n)
		}
	}
	return orderComponents(g, t.components)
}

type tarjanState struct {
	g *graph

	counter    int
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	components [][]string
}

func (t *tarjanState) strongconnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, e := range t.g.edges[v] {
		w := e.Target
		if _, visited := t.index[w]; !visited {
			t.strongconnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var comp []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		sort.Strings(comp)
		t.components = append(t.components, comp)
	}
}

// orderComponents takes Tarjan's raw component list and re-sorts it
// into a fully deterministic topological order via Kahn's algorithm
// over the condensation DAG: among all components with no unresolved
// dependency on another not-yet-emitted component, always emit the one
// whose minimum member name sorts first.
func orderComponents(g *graph, components [][]string) [][]string {
	compOf := make(map[string]int, len(g.names))
	for ci, comp := range components {
		for _, n := range comp {
			compOf[n] = ci
		}
	}

	// dependsOn[ci] = set of component indices ci's entities reference
	// (must be emitted before ci).
	dependsOn := make([]map[int]bool, len(components))
	dependents := make([]map[int]bool, len(components))
	for ci := range components {
		dependsOn[ci] = make(map[int]bool)
		dependents[ci] = make(map[int]bool)
	}
	for ci, comp := range components {
		for _, n := range comp {
			for _, e := range g.edges[n] {
				tj := compOf[e.Target]
				if tj == ci {
					continue
				}
				dependsOn[ci][tj] = true
				dependents[tj][ci] = true
			}
		}
	}

	remaining := make([]int, len(components))
	for ci := range components {
		remaining[ci] = len(dependsOn[ci])
	}

	minName := func(ci int) string { return components[ci][0] } // components are name-sorted

	ready := make([]int, 0, len(components))
	for ci := range components {
		if remaining[ci] == 0 {
			ready = append(ready, ci)
		}
	}

	var order [][]string
	emitted := make([]bool, len(components))
	for len(order) < len(components) {
		sort.Slice(ready, func(i, j int) bool { return minName(ready[i]) < minName(ready[j]) })
		ci := ready[0]
		ready = ready[1:]
		if emitted[ci] {
			continue
		}
		emitted[ci] = true
		order = append(order, components[ci])
		for dj := range dependents[ci] {
			remaining[dj]--
			if remaining[dj] == 0 {
				ready = append(ready, dj)
			}
		}
	}
	return order
}
