package query

import "github.com/velesdb/veles/pkg/velesql"

// splitAndTerms flattens a WHERE expression's top-level AND chain into
// its conjuncts, so NEAR/NEAR_FUSED/MATCH-text predicates (which name an
// access path rather than a row-local boolean test) can be pulled out
// from the plain filter terms that get evaluated per-candidate, per
// §4.I "remaining predicate applied as post-filter over candidates".
func splitAndTerms(where velesql.Expr) []velesql.Expr {
	if where == nil {
		return nil
	}
	if bin, ok := where.(*velesql.BinaryExpr); ok && bin.Op == "AND" {
		return append(splitAndTerms(bin.Left), splitAndTerms(bin.Right)...)
	}
	return []velesql.Expr{where}
}

// classifyTerms separates a WHERE's conjuncts into its (at most one)
// vector leg, its (at most one) fused-vector leg, its (at most one)
// full-text leg, and everything else (the residual filter, still ANDed
// together by the caller).
func classifyTerms(terms []velesql.Expr) (near *velesql.NearPredicate, fused *velesql.NearFusedPredicate, text *velesql.MatchTextPredicate, rest []velesql.Expr) {
	for _, t := range terms {
		switch p := t.(type) {
		case *velesql.NearPredicate:
			near = p
		case *velesql.NearFusedPredicate:
			fused = p
		case *velesql.MatchTextPredicate:
			text = p
		default:
			rest = append(rest, t)
		}
	}
	return
}

// rejoinAnd recombines filter terms into a single expression for Eval,
// the inverse of splitAndTerms for the residual (non-search) terms.
func rejoinAnd(terms []velesql.Expr) velesql.Expr {
	if len(terms) == 0 {
		return nil
	}
	out := terms[0]
	for _, t := range terms[1:] {
		out = &velesql.BinaryExpr{Op: "AND", Left: out, Right: t}
	}
	return out
}
