package graph

// defaultVisitedOverflow caps how many nodes a single traversal will track
// before it gives up, per §4.D. §8 Invariant 5 requires pairwise-distinct
// result ids for every traversal of a cyclic graph, including once this
// threshold is reached, so overflow can never mean "stop deduplicating" —
// it means "stop expanding the frontier and return what's been found so
// far." Callers that need a different bound (notably tests exercising the
// overflow path itself) set TraversalOptions.MaxVisited; zero means this
// default.
const defaultVisitedOverflow = 1_000_000

// Strategy selects BFS or DFS expansion order for Traverse.
type Strategy int

const (
	BFS Strategy = iota
	DFS
)

// TraversalOptions configures a single Traverse call, per §4.D.
type TraversalOptions struct {
	Source    uint64
	MaxDepth  int
	Limit     int
	RelLabel  string // empty matches every relationship label
	Strategy  Strategy
	Direction Direction
	// MaxVisited overrides defaultVisitedOverflow for this call. Zero uses
	// the default; tests use a small value to exercise the overflow path
	// without building a million-node graph.
	MaxVisited int
}

// Direction selects which adjacency index a traversal expands through.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// TraversalResult is one emitted node, per §4.D "Results carry node id,
// depth, and path."
type TraversalResult struct {
	NodeID uint64
	Depth  int
	Path   []uint64
}

type frame struct {
	nodeID uint64
	depth  int
	path   []uint64
}

// Traverse runs a BFS or DFS from opts.Source following the configured
// adjacency direction and relationship label, per §4.D's control-flow
// rules: a result-limit hit breaks immediately; exceeding max-depth for one
// path continues to siblings rather than aborting the whole traversal.
func (s *Store) Traverse(opts TraversalOptions) []TraversalResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[opts.Source]; !ok {
		return nil
	}

	maxVisited := opts.MaxVisited
	if maxVisited <= 0 {
		maxVisited = defaultVisitedOverflow
	}

	visited := map[uint64]struct{}{opts.Source: {}}
	queue := []frame{{nodeID: opts.Source, depth: 0, path: []uint64{opts.Source}}}
	var results []TraversalResult

	for len(queue) > 0 {
		var cur frame
		if opts.Strategy == DFS {
			cur = queue[len(queue)-1]
			queue = queue[:len(queue)-1]
		} else {
			cur = queue[0]
			queue = queue[1:]
		}

		results = append(results, TraversalResult{NodeID: cur.nodeID, Depth: cur.depth, Path: cur.path})
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
		if opts.MaxDepth > 0 && cur.depth >= opts.MaxDepth {
			continue
		}

		for _, neighborID := range s.neighborsLocked(cur.nodeID, opts.RelLabel, opts.Direction) {
			if _, seen := visited[neighborID]; seen {
				continue
			}
			if len(visited) >= maxVisited {
				// The frontier stops growing entirely once the cap is hit:
				// a neighbor that's neither added to visited nor enqueued
				// can never later look "unseen" via a second edge, so
				// result ids stay pairwise distinct past overflow (§8
				// Invariant 5) — the traversal just returns a partial
				// result instead of unbounding memory.
				continue
			}
			visited[neighborID] = struct{}{}
			path := make([]uint64, len(cur.path)+1)
			copy(path, cur.path)
			path[len(cur.path)] = neighborID
			queue = append(queue, frame{nodeID: neighborID, depth: cur.depth + 1, path: path})
		}
	}
	return results
}

func (s *Store) neighborsLocked(nodeID uint64, label string, dir Direction) []uint64 {
	var out []uint64
	collect := func(idx map[uint64]map[string]map[uint64]struct{}, resolveTarget func(*Edge) uint64) {
		byLabel := idx[nodeID]
		if byLabel == nil {
			return
		}
		add := func(set map[uint64]struct{}) {
			for edgeID := range set {
				if e, ok := s.edges[edgeID]; ok {
					out = append(out, resolveTarget(e))
				}
			}
		}
		if label != "" {
			add(byLabel[label])
			return
		}
		for _, set := range byLabel {
			add(set)
		}
	}
	if dir == Outgoing || dir == Both {
		collect(s.outgoing, func(e *Edge) uint64 { return e.Target })
	}
	if dir == Incoming || dir == Both {
		collect(s.incoming, func(e *Edge) uint64 { return e.Source })
	}
	return out
}
