package query

import (
	"context"
	"sort"
	"time"

	"github.com/velesdb/veles/pkg/fusion"
	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// executeSelect runs a SELECT statement end to end: resolve the
// collection, pick its candidate row set from any NEAR/NEAR_FUSED/MATCH
// leg in WHERE (or the full column store if there is none), apply the
// residual filter, apply JOINs, then hand off to finalizeProjection for
// GROUP BY/aggregation/ORDER BY/LIMIT, per §4.I.
func executeSelect(ctx context.Context, db *Database, s *velesql.SelectStatement, params map[string]any) (*ExecuteResult, error) {
	col, err := db.Get(s.From)
	if err != nil {
		return nil, err
	}

	terms := splitAndTerms(s.Where)
	near, fused, text, filterTerms := classifyTerms(terms)

	var order []uint64
	switch {
	case near != nil:
		results, err := runNear(ctx, col, near, params, limitHint(s.Limit))
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			order = append(order, r.ID)
		}
	case fused != nil:
		items, err := runNearFused(ctx, col, fused, params, limitHint(s.Limit))
		if err != nil {
			return nil, err
		}
		order = idsOf(items)
	case text != nil:
		limit := limitHint(s.Limit)
		if limit <= 0 {
			limit = defaultK
		}
		start := time.Now()
		results := col.Text.Search(text.Pattern, limit)
		col.Stats.Record(StoreText, time.Since(start))
		for _, r := range results {
			order = append(order, r.ID)
		}
	default:
		order = col.Columns.RowIDs()
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	}

	filterExpr := rejoinAnd(filterTerms)
	if filterExpr != nil {
		filterExpr, err = resolveOuterSubqueries(ctx, db, filterExpr, s.FromAlias)
		if err != nil {
			return nil, err
		}
	}

	envs := make([]*Env, 0, len(order))
	for _, rowID := range order {
		if !col.Columns.Contains(rowID) {
			continue
		}
		e := rowEnv(col, s.FromAlias, rowID, params)
		if filterExpr != nil {
			rowID := rowID
			e.ResolveSubquery = func(sub *velesql.Subquery) (any, error) {
				return resolveCorrelatedSubquery(ctx, db, sub, s.FromAlias, func(name string) (any, bool) {
					v, ok := col.Columns.Get(rowID, name)
					if !ok {
						return nil, false
					}
					return v.Any(), true
				})
			}
			keep, err := Eval(filterExpr, e)
			if err != nil {
				return nil, err
			}
			b, _ := asBool(keep)
			if !b {
				continue
			}
		}
		envs = append(envs, e)
	}

	starColumns := col.Columns.ColumnNames()
	for _, j := range s.Joins {
		var rightColumns []string
		envs, rightColumns, err = applyJoin(db, envs, s.FromAlias, j, params)
		if err != nil {
			return nil, err
		}
		starColumns = append(starColumns, rightColumns...)
	}

	return finalizeProjection(envs, s.Projection, s.GroupBy, s.Having, s.OrderBy, s.Limit, s.Offset, starColumns)
}

func rowEnv(col *Collection, alias string, rowID uint64, params map[string]any) *Env {
	get := func(name string) (any, bool) {
		if alias != "" {
			if prop, ok := stripAlias(name, alias); ok {
				if v, ok := col.Columns.Get(rowID, prop); ok {
					return v.Any(), true
				}
			}
		}
		v, ok := col.Columns.Get(rowID, name)
		if !ok {
			return nil, false
		}
		return v.Any(), true
	}
	return &Env{
		Params: params,
		Get:    get,
		Similarity: func(column string, vec []float32) (float64, bool) {
			return col.Vectors.Similarity(rowID, vec)
		},
	}
}

func limitHint(limit *int64) int {
	if limit == nil {
		return 0
	}
	return int(*limit)
}

func idsOf(items []fusion.Item) []uint64 {
	out := make([]uint64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func errUnsupportedSelectFeature(feature string) error {
	return veles.Newf(veles.KindUnsupportedFeature, "SELECT does not support %s", feature).WithDetail("feature", feature)
}
