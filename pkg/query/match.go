package query

import (
	"github.com/velesdb/veles/pkg/graph"
	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// cappedMaxHops bounds an unbounded variable-length pattern (`[*2..]`) so
// a dense graph can't turn one MATCH into an unbounded DFS; chosen well
// above any realistic hop count a memory-agent query would ask for.
const cappedMaxHops = 50

// Bindings maps a pattern's aliases to the node ids a single match
// assigned them.
type Bindings map[string]uint64

// matchPattern evaluates one MATCH pattern chain against g, returning one
// Bindings entry per distinct match, per §4.I "label-index start
// candidates, adjacency expansion, binding map alias -> node-id,
// bounded-length depth-first expansion, variable-length [*min..max]
// enumeration".
func matchPattern(g *graph.Store, p *Pattern, params map[string]any) ([]Bindings, error) {
	starts := startCandidates(g, p.Start)
	var out []Bindings
	for _, n := range starts {
		ok, err := nodeMatches(n, p.Start, params)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		b := Bindings{}
		if p.Start.Alias != "" {
			b[p.Start.Alias] = n.ID
		}
		results, err := expandFromNode(g, n.ID, p.Steps, 0, b, params)
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

func startCandidates(g *graph.Store, np *velesql.NodePattern) []*graph.Node {
	if np.Label != "" {
		return g.NodesByLabel(np.Label)
	}
	return g.AllNodes()
}

func nodeMatches(n *graph.Node, np *velesql.NodePattern, params map[string]any) (bool, error) {
	if np.Label != "" && n.Label != np.Label {
		return false, nil
	}
	for key, expr := range np.Properties {
		want, err := Eval(expr, &Env{Params: params})
		if err != nil {
			return false, err
		}
		have, ok := n.Properties[key]
		if !ok {
			return false, nil
		}
		if !compare("=", have.Any(), want) {
			return false, nil
		}
	}
	return true, nil
}

func expandFromNode(g *graph.Store, nodeID uint64, steps []*velesql.PatternStep, idx int, bindings Bindings, params map[string]any) ([]Bindings, error) {
	if idx >= len(steps) {
		return []Bindings{cloneBindings(bindings)}, nil
	}
	step := steps[idx]
	edge := step.Edge

	minHops, maxHops := 1, 1
	if edge.VariableHops {
		minHops, maxHops = edge.MinHops, edge.MaxHops
		if minHops <= 0 {
			minHops = 1
		}
		if maxHops < 0 {
			maxHops = cappedMaxHops
		}
	}

	var out []Bindings
	var walkErr error
	visited := map[uint64]bool{nodeID: true}

	var dfs func(curID uint64, depth int)
	dfs = func(curID uint64, depth int) {
		if walkErr != nil {
			return
		}
		if depth >= minHops {
			n, ok := g.GetNode(curID)
			if ok {
				matched, err := nodeMatches(n, step.Node, params)
				if err != nil {
					walkErr = err
					return
				}
				if matched {
					nb := cloneBindings(bindings)
					if step.Node.Alias != "" {
						nb[step.Node.Alias] = curID
					}
					rest, err := expandFromNode(g, curID, steps, idx+1, nb, params)
					if err != nil {
						walkErr = err
						return
					}
					out = append(out, rest...)
				}
			}
		}
		if depth >= maxHops {
			return
		}
		for _, next := range neighborIDs(g, curID, edge) {
			if visited[next] {
				continue
			}
			visited[next] = true
			dfs(next, depth+1)
			delete(visited, next)
		}
	}
	dfs(nodeID, 0)
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

// neighborIDs returns the node ids reachable from nodeID across one of
// edge's accepted relationship types, in the direction(s) the pattern
// step names (outgoing, incoming, or both for an undirected step).
func neighborIDs(g *graph.Store, nodeID uint64, edge *velesql.EdgePattern) []uint64 {
	var ids []uint64
	labels := edge.Types
	if len(labels) == 0 {
		labels = []string{""}
	}
	if edge.Outgoing || (!edge.Outgoing && !edge.Incoming) {
		for _, l := range labels {
			for _, e := range g.Outgoing(nodeID, l) {
				ids = append(ids, e.Target)
			}
		}
	}
	if edge.Incoming || (!edge.Outgoing && !edge.Incoming) {
		for _, l := range labels {
			for _, e := range g.Incoming(nodeID, l) {
				ids = append(ids, e.Source)
			}
		}
	}
	return ids
}

func cloneBindings(b Bindings) Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// joinPatterns combines the binding lists of a MATCH's comma-separated
// patterns. Patterns sharing an alias are equi-joined on the shared
// binding; disjoint patterns are cross-joined.
func joinPatterns(lists [][]Bindings) []Bindings {
	if len(lists) == 0 {
		return nil
	}
	acc := lists[0]
	for _, next := range lists[1:] {
		acc = joinTwo(acc, next)
	}
	return acc
}

func joinTwo(a, b []Bindings) []Bindings {
	var out []Bindings
	for _, ab := range a {
		for _, bb := range b {
			if compatible(ab, bb) {
				merged := cloneBindings(ab)
				for k, v := range bb {
					merged[k] = v
				}
				out = append(out, merged)
			}
		}
	}
	return out
}

func compatible(a, b Bindings) bool {
	for k, v := range a {
		if bv, ok := b[k]; ok && bv != v {
			return false
		}
	}
	return true
}

// nodeAsMap flattens a node into a plain value for a RETURN projection
// that names a bare alias (`RETURN a`) rather than a property path.
func nodeAsMap(n *graph.Node) map[string]any {
	out := map[string]any{"id": n.ID, "label": n.Label}
	for k, v := range n.Properties {
		out[k] = v.Any()
	}
	return out
}

func resolveBindingNodes(g *graph.Store, b Bindings) map[string]*graph.Node {
	out := make(map[string]*graph.Node, len(b))
	for alias, id := range b {
		n, _ := g.GetNode(id)
		out[alias] = n
	}
	return out
}

func errUnsupportedMatchFeature(feature string) error {
	return veles.Newf(veles.KindUnsupportedFeature, "MATCH does not support %s", feature).WithDetail("feature", feature)
}
