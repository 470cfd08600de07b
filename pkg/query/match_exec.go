package query

import (
	"context"
	"time"

	"github.com/velesdb/veles/pkg/velesql"
)

// ExecuteMatch runs a MATCH ... RETURN statement against col's graph
// store, per §4.I's MATCH execution: evaluate every comma-separated
// pattern into its own binding list, join the lists on shared aliases,
// apply the binding-aware WHERE, then reuse the same
// GROUP BY/aggregation/ORDER BY/LIMIT pipeline SELECT uses for RETURN.
// MATCH has no FROM clause of its own (a pattern always matches within
// one collection's graph), so the collection is supplied by the caller
// rather than resolved from the statement.
func ExecuteMatch(ctx context.Context, db *Database, col *Collection, s *velesql.MatchStatement, params map[string]any) (*ExecuteResult, error) {
	start := time.Now()
	lists := make([][]Bindings, len(s.Patterns))
	for i, p := range s.Patterns {
		b, err := matchPattern(col.Graph, p, params)
		if err != nil {
			return nil, err
		}
		lists[i] = b
	}
	combined := joinPatterns(lists)
	col.Stats.Record(StoreGraph, time.Since(start))

	filterExpr := s.Where
	if filterExpr != nil {
		aliases := matchAliases(s)
		resolved, err := rewriteExpr(filterExpr, func(e velesql.Expr) (velesql.Expr, bool, error) {
			sub, ok := e.(*velesql.Subquery)
			if !ok {
				return nil, false, nil
			}
			if referencesAnyAlias(sub.Statement, aliases) {
				return nil, false, errUnsupportedMatchSubquery()
			}
			val, err := scalarSubqueryValue(ctx, db, sub.Statement, nil)
			if err != nil {
				return nil, false, err
			}
			return literalOf(val), true, nil
		})
		if err != nil {
			return nil, err
		}
		filterExpr = resolved
	}

	envs := make([]*Env, 0, len(combined))
	for _, b := range combined {
		bindings := resolveBindingNodes(col.Graph, b)
		e := &Env{Params: params, Bindings: bindings, Get: func(name string) (any, bool) {
			n, ok := bindings[name]
			if !ok || n == nil {
				return nil, false
			}
			return nodeAsMap(n), true
		}}
		if filterExpr != nil {
			keep, err := Eval(filterExpr, e)
			if err != nil {
				return nil, err
			}
			ok, _ := asBool(keep)
			if !ok {
				continue
			}
		}
		envs = append(envs, e)
	}

	var starColumns []string
	for alias := range matchAliases(s) {
		starColumns = append(starColumns, alias)
	}
	return finalizeProjection(envs, s.Return, nil, nil, s.OrderBy, s.Limit, s.Offset, starColumns)
}

func matchAliases(s *velesql.MatchStatement) map[string]bool {
	out := map[string]bool{}
	for _, p := range s.Patterns {
		if p.Start.Alias != "" {
			out[p.Start.Alias] = true
		}
		for _, step := range p.Steps {
			if step.Node.Alias != "" {
				out[step.Node.Alias] = true
			}
			if step.Edge.Alias != "" {
				out[step.Edge.Alias] = true
			}
		}
	}
	return out
}

func referencesAnyAlias(stmt *velesql.SelectStatement, aliases map[string]bool) bool {
	found := false
	_, _ = rewriteExpr(stmt.Where, func(e velesql.Expr) (velesql.Expr, bool, error) {
		if pa, ok := e.(*velesql.PropertyAccess); ok && aliases[pa.Alias] {
			found = true
		}
		return nil, false, nil
	})
	return found
}
