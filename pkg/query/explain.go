package query

import (
	"github.com/velesdb/veles/pkg/velesql"
)

// Features records which grammar constructs a statement uses, generalizing
// the teacher's ExecutionPlan feature reporting (pkg/cypher/explain.go) from
// a fixed node/edge count into the boolean flag set §4.I's EXPLAIN output
// names: "has_vector_search, has_filter, has_order_by, has_group_by,
// has_aggregation, has_join, has_fusion, limit, offset".
type Features struct {
	HasVectorSearch bool
	HasGraphMatch   bool
	HasFilter       bool
	HasOrderBy      bool
	HasGroupBy      bool
	HasAggregation  bool
	HasJoin         bool
	HasFusion       bool
	Limit           *int64
	Offset          *int64
}

// CostEstimate is one plan step's cost, per §4.I "uses_index, index_name,
// selectivity, complexity_class".
type CostEstimate struct {
	UsesIndex       bool
	IndexName       string
	Selectivity     float64
	ComplexityClass string
}

// PlanStep is one node of an EXPLAIN tree, generalizing the teacher's
// PlanOperator (pkg/cypher/explain.go) from an arbitrary-fields map to a
// typed cost estimate.
type PlanStep struct {
	Operator string
	Detail   string
	Cost     CostEstimate
	Children []*PlanStep
}

// ExplainResult is the full response to an EXPLAIN request.
type ExplainResult struct {
	Plan     *PlanStep
	Features Features
	Strategy Strategy
}

func analyzeFeatures(stmt velesql.Statement) Features {
	var f Features
	switch s := stmt.(type) {
	case *velesql.SelectStatement:
		f.HasJoin = len(s.Joins) > 0
		f.HasGroupBy = len(s.GroupBy) > 0
		f.HasOrderBy = len(s.OrderBy) > 0
		f.Limit = s.Limit
		f.Offset = s.Offset
		if s.Where != nil {
			f.HasFilter = true
			walkPredicateKinds(s.Where, &f)
		}
		for _, item := range s.Projection {
			if item.Expr != nil {
				if _, ok := isAggregateCall(item.Expr); ok {
					f.HasAggregation = true
				}
			}
		}
	case *velesql.MatchStatement:
		f.HasGraphMatch = true
		f.HasOrderBy = len(s.OrderBy) > 0
		f.Limit = s.Limit
		f.Offset = s.Offset
		if s.Where != nil {
			f.HasFilter = true
		}
	case *velesql.CompoundStatement:
		lf := analyzeFeatures(s.Left)
		rf := analyzeFeatures(s.Right)
		f = mergeFeatures(lf, rf)
	}
	return f
}

func walkPredicateKinds(e velesql.Expr, f *Features) {
	switch p := e.(type) {
	case *velesql.NearPredicate:
		f.HasVectorSearch = true
	case *velesql.NearFusedPredicate:
		f.HasVectorSearch = true
		f.HasFusion = true
	case *velesql.BinaryExpr:
		walkPredicateKinds(p.Left, f)
		walkPredicateKinds(p.Right, f)
	case *velesql.UnaryExpr:
		walkPredicateKinds(p.Operand, f)
	}
}

func mergeFeatures(a, b Features) Features {
	return Features{
		HasVectorSearch: a.HasVectorSearch || b.HasVectorSearch,
		HasGraphMatch:   a.HasGraphMatch || b.HasGraphMatch,
		HasFilter:       a.HasFilter || b.HasFilter,
		HasOrderBy:      a.HasOrderBy || b.HasOrderBy,
		HasGroupBy:      a.HasGroupBy || b.HasGroupBy,
		HasAggregation:  a.HasAggregation || b.HasAggregation,
		HasJoin:         a.HasJoin || b.HasJoin,
		HasFusion:       a.HasFusion || b.HasFusion,
	}
}

// Explain builds the plan/cost/feature report for stmt against db without
// executing it, per §4.I's EXPLAIN operation.
func Explain(db *Database, stmt velesql.Statement) (*ExplainResult, error) {
	features := analyzeFeatures(stmt)
	plan, err := planStatement(db, stmt)
	if err != nil {
		return nil, err
	}
	var strategy Strategy
	if col, cerr := collectionOf(db, stmt); cerr == nil && col != nil {
		strategy = ChooseStrategy(features, col.Stats)
	} else {
		strategy = ChooseStrategy(features, NewQueryStats())
	}
	return &ExplainResult{Plan: plan, Features: features, Strategy: strategy}, nil
}

func collectionOf(db *Database, stmt velesql.Statement) (*Collection, error) {
	switch s := stmt.(type) {
	case *velesql.SelectStatement:
		return db.Get(s.From)
	case *velesql.MatchStatement:
		if len(s.Patterns) == 0 {
			return nil, nil
		}
		return nil, nil
	case *velesql.CompoundStatement:
		return collectionOf(db, s.Left)
	default:
		return nil, nil
	}
}

func planStatement(db *Database, stmt velesql.Statement) (*PlanStep, error) {
	switch s := stmt.(type) {
	case *velesql.SelectStatement:
		return planSelect(db, s)
	case *velesql.MatchStatement:
		return planMatch(s), nil
	case *velesql.CompoundStatement:
		left, err := planStatement(db, s.Left)
		if err != nil {
			return nil, err
		}
		right, err := planStatement(db, s.Right)
		if err != nil {
			return nil, err
		}
		return &PlanStep{
			Operator: string(s.Op),
			Cost:     CostEstimate{ComplexityClass: "O(n+m)"},
			Children: []*PlanStep{left, right},
		}, nil
	default:
		return &PlanStep{Operator: "Unknown"}, nil
	}
}

func planSelect(db *Database, s *velesql.SelectStatement) (*PlanStep, error) {
	col, err := db.Get(s.From)
	if err != nil {
		return nil, err
	}
	root := &PlanStep{Operator: "Scan", Detail: s.From}

	terms := splitAndTerms(s.Where)
	vecTerm, fusedTerm, textTerm, filterTerms := classifyTerms(terms)

	switch {
	case vecTerm != nil:
		root = &PlanStep{
			Operator: "VectorSearch",
			Detail:   vecTerm.Column,
			Cost:     CostEstimate{UsesIndex: true, IndexName: "hnsw:" + vecTerm.Column, Selectivity: estimateSelectivity(col.Vectors.Len()), ComplexityClass: "O(log n)"},
		}
	case fusedTerm != nil:
		root = &PlanStep{
			Operator: "VectorSearchFused",
			Detail:   fusedTerm.Column,
			Cost:     CostEstimate{UsesIndex: true, IndexName: "hnsw:" + fusedTerm.Column, Selectivity: estimateSelectivity(col.Vectors.Len()), ComplexityClass: "O(k log n)"},
		}
	case textTerm != nil:
		root = &PlanStep{
			Operator: "FullTextSearch",
			Detail:   textTerm.Column,
			Cost:     CostEstimate{UsesIndex: true, IndexName: "bm25:" + textTerm.Column, ComplexityClass: "O(t)"},
		}
	default:
		root.Cost = CostEstimate{ComplexityClass: "O(n)"}
	}

	if len(filterTerms) > 0 {
		root = &PlanStep{Operator: "Filter", Cost: CostEstimate{ComplexityClass: "O(n)"}, Children: []*PlanStep{root}}
	}
	for _, j := range s.Joins {
		root = &PlanStep{
			Operator: "Join:" + string(j.Kind),
			Detail:   j.Collection,
			Cost:     CostEstimate{ComplexityClass: "O(n+m)"},
			Children: []*PlanStep{root},
		}
	}
	if len(s.GroupBy) > 0 {
		root = &PlanStep{Operator: "GroupBy", Cost: CostEstimate{ComplexityClass: "O(n log n)"}, Children: []*PlanStep{root}}
	}
	if len(s.OrderBy) > 0 {
		root = &PlanStep{Operator: "Sort", Cost: CostEstimate{ComplexityClass: "O(n log n)"}, Children: []*PlanStep{root}}
	}
	if s.Limit != nil {
		root = &PlanStep{Operator: "Limit", Cost: CostEstimate{ComplexityClass: "O(1)"}, Children: []*PlanStep{root}}
	}
	return root, nil
}

func planMatch(s *velesql.MatchStatement) *PlanStep {
	root := &PlanStep{Operator: "Expand", Cost: CostEstimate{ComplexityClass: "O(b^d)"}}
	if s.Where != nil {
		root = &PlanStep{Operator: "Filter", Cost: CostEstimate{ComplexityClass: "O(n)"}, Children: []*PlanStep{root}}
	}
	if len(s.OrderBy) > 0 {
		root = &PlanStep{Operator: "Sort", Cost: CostEstimate{ComplexityClass: "O(n log n)"}, Children: []*PlanStep{root}}
	}
	if s.Limit != nil {
		root = &PlanStep{Operator: "Limit", Cost: CostEstimate{ComplexityClass: "O(1)"}, Children: []*PlanStep{root}}
	}
	return root
}

func estimateSelectivity(total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1.0 / float64(total)
}
