package query

import (
	"context"

	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// resolveOuterSubqueries rewrites expr's scalar subqueries, per §4.I
// "non-correlated scalar subqueries resolved once before outer
// evaluation; correlated scalar subqueries re-evaluated per outer row".
// Non-correlated subqueries (no reference to outerAlias anywhere in their
// own WHERE) are executed immediately and replaced by a Literal; a
// correlated subquery is left as a Subquery node for the per-row
// resolver installed on Env.ResolveSubquery to handle.
func resolveOuterSubqueries(ctx context.Context, db *Database, expr velesql.Expr, outerAlias string) (velesql.Expr, error) {
	return rewriteExpr(expr, func(e velesql.Expr) (velesql.Expr, bool, error) {
		sub, ok := e.(*velesql.Subquery)
		if !ok {
			return nil, false, nil
		}
		if outerAlias != "" && referencesAlias(sub.Statement, outerAlias) {
			return nil, false, nil
		}
		val, err := scalarSubqueryValue(ctx, db, sub.Statement, nil)
		if err != nil {
			return nil, false, err
		}
		return literalOf(val), true, nil
	})
}

// resolveCorrelatedSubquery runs a correlated subquery for one outer row,
// binding outerAlias-qualified property accesses in the subquery's own
// WHERE to values pulled from outerGet before executing it.
func resolveCorrelatedSubquery(ctx context.Context, db *Database, sub *velesql.Subquery, outerAlias string, outerGet func(string) (any, bool)) (any, error) {
	bound, err := rewriteExpr(sub.Statement.Where, func(e velesql.Expr) (velesql.Expr, bool, error) {
		pa, ok := e.(*velesql.PropertyAccess)
		if !ok || pa.Alias != outerAlias {
			return nil, false, nil
		}
		v, _ := outerGet(pa.Property)
		return literalOf(v), true, nil
	})
	if err != nil {
		return nil, err
	}
	stmtCopy := *sub.Statement
	stmtCopy.Where = bound
	return scalarSubqueryValue(ctx, db, &stmtCopy, nil)
}

func scalarSubqueryValue(ctx context.Context, db *Database, stmt *velesql.SelectStatement, params map[string]any) (any, error) {
	result, err := executeSelect(ctx, db, stmt, params)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return nil, nil
	}
	return result.Rows[0][0], nil
}

// referencesAlias reports whether stmt's WHERE mentions alias anywhere,
// the correlation test per §4.I's subquery rule.
func referencesAlias(stmt *velesql.SelectStatement, alias string) bool {
	found := false
	_, _ = rewriteExpr(stmt.Where, func(e velesql.Expr) (velesql.Expr, bool, error) {
		if pa, ok := e.(*velesql.PropertyAccess); ok && pa.Alias == alias {
			found = true
		}
		return nil, false, nil
	})
	return found
}

func literalOf(v any) *velesql.Literal {
	kind := velesql.LiteralNull
	switch v.(type) {
	case int64:
		kind = velesql.LiteralInt
	case float64:
		kind = velesql.LiteralFloat
	case string:
		kind = velesql.LiteralString
	case bool:
		kind = velesql.LiteralBool
	}
	return &velesql.Literal{Kind: kind, Value: v}
}

// rewriteExpr walks expr depth-first, replacing any node for which fn
// reports a match. It is the shared substitution engine behind both
// non-correlated subquery resolution and correlated outer-reference
// binding.
func rewriteExpr(expr velesql.Expr, fn func(velesql.Expr) (velesql.Expr, bool, error)) (velesql.Expr, error) {
	if expr == nil {
		return nil, nil
	}
	if replacement, matched, err := fn(expr); err != nil {
		return nil, err
	} else if matched {
		return replacement, nil
	}
	switch e := expr.(type) {
	case *velesql.BinaryExpr:
		l, err := rewriteExpr(e.Left, fn)
		if err != nil {
			return nil, err
		}
		r, err := rewriteExpr(e.Right, fn)
		if err != nil {
			return nil, err
		}
		return &velesql.BinaryExpr{Op: e.Op, Left: l, Right: r}, nil
	case *velesql.UnaryExpr:
		o, err := rewriteExpr(e.Operand, fn)
		if err != nil {
			return nil, err
		}
		return &velesql.UnaryExpr{Op: e.Op, Operand: o}, nil
	case *velesql.FunctionCall:
		args := make([]velesql.Expr, len(e.Args))
		for i, a := range e.Args {
			v, err := rewriteExpr(a, fn)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return &velesql.FunctionCall{Name: e.Name, Args: args, Distinct: e.Distinct}, nil
	case *velesql.ArrayLiteral:
		elems := make([]velesql.Expr, len(e.Elements))
		for i, a := range e.Elements {
			v, err := rewriteExpr(a, fn)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return &velesql.ArrayLiteral{Elements: elems}, nil
	default:
		return expr, nil
	}
}

func errUnsupportedMatchSubquery() error {
	return veles.New(veles.KindUnsupportedFeature, "correlated subqueries in MATCH WHERE are not supported").WithDetail("feature", "match_correlated_subquery")
}
