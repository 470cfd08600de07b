package query

import (
	"context"

	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// Execute runs a SELECT or compound (UNION/INTERSECT/EXCEPT) statement
// against db, per §4.I. MATCH statements have no FROM of their own and
// must be run with ExecuteMatch against an explicit *Collection instead
// (the shape Collection.MatchQuery uses); handing one to Execute is an
// UnsupportedFeature rather than a silent misinterpretation.
func Execute(ctx context.Context, db *Database, stmt velesql.Statement, params map[string]any) (*ExecuteResult, error) {
	switch s := stmt.(type) {
	case *velesql.SelectStatement:
		return executeSelect(ctx, db, s, params)
	case *velesql.CompoundStatement:
		left, err := Execute(ctx, db, s.Left, params)
		if err != nil {
			return nil, err
		}
		right, err := Execute(ctx, db, s.Right, params)
		if err != nil {
			return nil, err
		}
		return applySetOp(s.Op, left, right), nil
	case *velesql.MatchStatement:
		return nil, veles.New(veles.KindUnsupportedFeature, "MATCH must be run via ExecuteMatch against a specific collection").WithDetail("feature", "match_via_execute")
	default:
		return nil, veles.Newf(veles.KindUnsupportedFeature, "unsupported statement %T", stmt).WithDetail("feature", "unknown_statement")
	}
}

// Query parses sql and executes it via Execute, the entry point behind
// Database.execute_query per §6.
func Query(ctx context.Context, db *Database, sql string, params map[string]any) (*ExecuteResult, error) {
	stmt, err := velesql.Parse(sql)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, db, stmt, params)
}

// QueryMatch parses a MATCH statement and runs it against col via
// ExecuteMatch, the entry point behind Collection.match_query per §6.
func QueryMatch(ctx context.Context, db *Database, col *Collection, cypher string, params map[string]any) (*ExecuteResult, error) {
	stmt, err := velesql.Parse(cypher)
	if err != nil {
		return nil, err
	}
	m, ok := stmt.(*velesql.MatchStatement)
	if !ok {
		return nil, veles.New(veles.KindInvalidValue, "match_query requires a MATCH statement")
	}
	return ExecuteMatch(ctx, db, col, m, params)
}

// ExplainQuery parses sql and builds its EXPLAIN report without running
// it, per §6's per-collection/Database "explain" operation.
func ExplainQuery(db *Database, sql string) (*ExplainResult, error) {
	stmt, err := velesql.Parse(sql)
	if err != nil {
		return nil, err
	}
	return Explain(db, stmt)
}
