// Package depgraph builds the entity reference graph from a schema and
// computes a DependencyPlan: a tiered, deterministic import order with
// intra-tier cycles resolved by deferring the minimum-effort edge set
// (§4.6 Dependency Analyzer, C6). The algorithm is pure graph logic
// over plain slices and maps — no graph library — grounded on the
// teacher's internal/deps hierarchy-walking style, which solves its
// own (simpler, acyclic) bead-parent problem the same way: direct
// slice/map traversal rather than reaching for an external dependency.
package depgraph

import (
	"sort"

	"github.com/dataplane-tools/xrm-migrate/internal/schema"
)

// Edge is one reference-field edge from Entity to Target.
type Edge struct {
	Entity string
	Field  string
	Target string
}

// Tier is a set of entities importable in parallel: either a singleton
// node or the full member set of a non-trivial SCC. DeferredFields
// names the reference fields whose resolution must be postponed to
// the post-tier deferred pass.
type Tier struct {
	Entities       []string
	DeferredFields []Edge
}

// Plan is the ordered sequence of Tiers a DependencyPlan produces.
type Plan struct {
	Tiers []Tier
}

// Build constructs the reference graph from s (one edge per reference
// field targeting another entity declared in the schema; references to
// undeclared entities are ignored — they cannot participate in
// ordering) and computes its DependencyPlan via Tarjan's SCC algorithm.
//
// Entities present in extra (bundle-only entities absent from the
// schema, per §4.6's Plan phase) are appended as singleton tiers after
// all others, in logical-name order.
func Build(s *schema.Schema, extra []string) *Plan {
	names := make([]string, 0, len(s.Entities))
	edgesByEntity := make(map[string][]Edge)
	for _, e := range s.Entities {
		names = append(names, e.Name)
		for _, f := range e.Fields {
			if !f.IsReference() || f.LookupEntity == "" {
				continue
			}
			if !s.HasEntity(f.LookupEntity) {
				continue
			}
			edgesByEntity[e.Name] = append(edgesByEntity[e.Name], Edge{Entity: e.Name, Field: f.Name, Target: f.LookupEntity})
		}
	}
	sort.Strings(names)
	for _, edges := range edgesByEntity {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].Field != edges[j].Field {
				return edges[i].Field < edges[j].Field
			}
			return edges[i].Target < edges[j].Target
		})
	}

	g := &graph{names: names, edges: edgesByEntity}
	sccs := g.tarjanSCCs()

	plan := &Plan{}
	for _, members := range sccs {
		if len(members) == 1 {
			name := members[0]
			deferred := selfReferenceEdges(name, edgesByEntity[name])
			plan.Tiers = append(plan.Tiers, Tier{Entities: members, DeferredFields: deferred})
			continue
		}
		deferred := deferredEdgesForSCC(members, edgesByEntity)
		plan.Tiers = append(plan.Tiers, Tier{Entities: members, DeferredFields: deferred})
	}

	extraSorted := append([]string(nil), extra...)
	sort.Strings(extraSorted)
	for _, name := range extraSorted {
		plan.Tiers = append(plan.Tiers, Tier{Entities: []string{name}})
	}

	return plan
}

// selfReferenceEdges returns the edges of entity that target itself;
// self-references are always deferred regardless of SCC membership.
func selfReferenceEdges(entity string, edges []Edge) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.Target == entity {
			out = append(out, e)
		}
	}
	return out
}

// deferredEdgesForSCC picks the deferred-edge set for a non-trivial
// SCC: every back-edge of a DFS spanning tree restricted to the SCC's
// members, per §4.6's "practical rule". This yields a correct, not
// necessarily minimum, feedback-arc set. Self-references are always
// included. Members are visited in ascending name order for
// determinism, and each node's out-edges in (field, target) order, so
// the resulting deferred set is stable across runs.
func deferredEdgesForSCC(members []string, edgesByEntity map[string][]Edge) []Edge {
	inSCC := make(map[string]bool, len(members))
	for _, m := range members {
		inSCC[m] = true
	}
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(members))
	for _, m := range members {
		color[m] = white
	}

	var deferred []Edge
	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		for _, e := range edgesByEntity[node] {
			if !inSCC[e.Target] {
				continue
			}
			if e.Target == node {
				deferred = append(deferred, e)
				continue
			}
			switch color[e.Target] {
			case white:
				visit(e.Target)
			case gray:
				// back-edge to an ancestor still on the DFS stack
				deferred = append(deferred, e)
			case black:
				// forward/cross edge within the SCC; safe to keep,
				// since its target is already fully processed.
			}
		}
		color[node] = black
	}
	for _, m := range sorted {
		if color[m] == white {
			visit(m)
		}
	}

	sort.Slice(deferred, func(i, j int) bool {
		if deferred[i].Entity != deferred[j].Entity {
			return deferred[i].Entity < deferred[j].Entity
		}
		return deferred[i].Field < deferred[j].Field
	})
	return deferred
}
