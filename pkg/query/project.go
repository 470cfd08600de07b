package query

import (
	"sort"
	"strings"

	"github.com/velesdb/veles/pkg/pool"
	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// ExecuteResult is the tabular output of any VelesQL statement, per §4.I
// RETURN/projection, generalizing the teacher's ExecuteResult
// (pkg/cypher/types.go) from an interface{}-typed write-mutation report
// to a read-query row set.
type ExecuteResult struct {
	Columns []string
	Rows    [][]any
}

// finalizeProjection applies GROUP BY/aggregation, HAVING, projection,
// ORDER BY, and LIMIT/OFFSET uniformly over a candidate row set,
// independent of whether the rows came from a SELECT's column scan or a
// MATCH's binding enumeration, per §4.I "RETURN/projection: ...
// aggregation COUNT/SUM/AVG/MIN/MAX grouping by remaining projection, ...
// stable multi-column ORDER BY".
func finalizeProjection(envs []*Env, projection []velesql.SelectItem, groupBy []velesql.Expr, having velesql.Expr, orderBy []velesql.OrderItem, limit, offset *int64, starColumns []string) (*ExecuteResult, error) {
	aggregateRefs := map[string]*velesql.FunctionCall{}
	for _, item := range projection {
		if item.Expr != nil {
			walkAggregates(item.Expr, aggregateRefs)
		}
	}
	if having != nil {
		walkAggregates(having, aggregateRefs)
	}

	grouped := len(groupBy) > 0 || len(aggregateRefs) > 0

	var rowEnvs []*Env
	if grouped {
		groups, groupKeyEnvs, err := groupRows(envs, groupBy)
		if err != nil {
			return nil, err
		}
		for i, group := range groups {
			ge := groupKeyEnvs[i]
			ge.Aggregates = make(map[string]any, len(aggregateRefs))
			for key, fc := range aggregateRefs {
				v, err := computeAggregate(fc, group)
				if err != nil {
					return nil, err
				}
				ge.Aggregates[key] = v
			}
			if having != nil {
				ok, err := Eval(having, ge)
				if err != nil {
					return nil, err
				}
				b, _ := asBool(ok)
				if !b {
					continue
				}
			}
			rowEnvs = append(rowEnvs, ge)
		}
	} else {
		rowEnvs = envs
	}

	if len(orderBy) > 0 {
		sortEnvs(rowEnvs, orderBy)
	}

	columns, rows, err := buildRows(rowEnvs, projection, starColumns)
	if err != nil {
		return nil, err
	}

	rows = applyLimitOffset(rows, limit, offset)
	return &ExecuteResult{Columns: columns, Rows: rows}, nil
}

func walkAggregates(e velesql.Expr, found map[string]*velesql.FunctionCall) {
	switch v := e.(type) {
	case *velesql.FunctionCall:
		if fc, ok := isAggregateCall(v); ok {
			found[aggregateKey(fc)] = fc
			return
		}
		for _, a := range v.Args {
			walkAggregates(a, found)
		}
	case *velesql.BinaryExpr:
		walkAggregates(v.Left, found)
		walkAggregates(v.Right, found)
	case *velesql.UnaryExpr:
		walkAggregates(v.Operand, found)
	}
}

func groupRows(envs []*Env, groupBy []velesql.Expr) ([][]*Env, []*Env, error) {
	if len(groupBy) == 0 {
		rep := &Env{}
		if len(envs) > 0 {
			rep = cloneEnv(envs[0])
		}
		return [][]*Env{envs}, []*Env{rep}, nil
	}
	type group struct {
		key    []any
		rows   []*Env
		values map[string]any
	}
	var groups []*group
	for _, e := range envs {
		key := make([]any, len(groupBy))
		values := make(map[string]any, len(groupBy))
		for i, gb := range groupBy {
			v, err := Eval(gb, e)
			if err != nil {
				return nil, nil, err
			}
			key[i] = v
			values[exprText(gb)] = v
		}
		var match *group
		for _, g := range groups {
			if sameKey(g.key, key) {
				match = g
				break
			}
		}
		if match == nil {
			match = &group{key: key, values: values}
			groups = append(groups, match)
		}
		match.rows = append(match.rows, e)
	}
	rowGroups := make([][]*Env, len(groups))
	keyEnvs := make([]*Env, len(groups))
	for i, g := range groups {
		rowGroups[i] = g.rows
		base := &Env{}
		if len(g.rows) > 0 {
			base = cloneEnv(g.rows[0])
		}
		values := g.values
		prevGet := base.Get
		base.Get = func(name string) (any, bool) {
			if v, ok := values[name]; ok {
				return v, true
			}
			if prevGet != nil {
				return prevGet(name)
			}
			return nil, false
		}
		keyEnvs[i] = base
	}
	return rowGroups, keyEnvs, nil
}

func cloneEnv(e *Env) *Env {
	if e == nil {
		return &Env{}
	}
	c := *e
	return &c
}

func sameKey(a, b []any) bool {
	for i := range a {
		if !compare("=", a[i], b[i]) {
			if a[i] != nil || b[i] != nil {
				return false
			}
		}
	}
	return true
}

func computeAggregate(fc *velesql.FunctionCall, rows []*Env) (any, error) {
	name := strings.ToUpper(fc.Name)
	if name == "COUNT" && (len(fc.Args) == 0 || isStarIdent(fc.Args[0])) {
		return int64(len(rows)), nil
	}
	if len(fc.Args) != 1 {
		return nil, veles.Newf(veles.KindAggregationError, "%s() requires exactly one argument", name)
	}
	var values []any
	seen := map[string]bool{}
	for _, e := range rows {
		v, err := Eval(fc.Args[0], e)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if fc.Distinct {
			key := exprText(fc.Args[0]) + "|" + sprintKey(v)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		values = append(values, v)
	}
	switch name {
	case "COUNT":
		return int64(len(values)), nil
	case "SUM", "AVG":
		var sum float64
		allInt := true
		for _, v := range values {
			f, ok := toFloat(v)
			if !ok {
				return nil, veles.Newf(veles.KindAggregationError, "%s() over non-numeric value", name)
			}
			if _, isInt := v.(int64); !isInt {
				allInt = false
			}
			sum += f
		}
		if len(values) == 0 {
			if name == "SUM" {
				return int64(0), nil
			}
			return nil, nil
		}
		if name == "SUM" {
			if allInt {
				return int64(sum), nil
			}
			return sum, nil
		}
		return sum / float64(len(values)), nil
	case "MIN", "MAX":
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c := compare("<", v, best)
			if (name == "MIN" && c) || (name == "MAX" && compare(">", v, best)) {
				best = v
			}
		}
		return best, nil
	default:
		return nil, veles.Newf(veles.KindAggregationError, "unknown aggregate %s", name)
	}
}

func isStarIdent(e velesql.Expr) bool {
	id, ok := e.(*velesql.Identifier)
	return ok && id.Name == "*"
}

func sprintKey(v any) string {
	s, _ := asString(v)
	return s
}

func buildRows(envs []*Env, projection []velesql.SelectItem, starColumns []string) ([]string, [][]any, error) {
	var columns []string
	star := false
	for _, item := range projection {
		if item.Star {
			star = true
			continue
		}
		if item.Alias != "" {
			columns = append(columns, item.Alias)
		} else {
			columns = append(columns, exprText(item.Expr))
		}
	}
	if star {
		columns = append(append([]string{}, starColumns...), columns...)
	}

	// The pooled slice's spare capacity (from a previous query's row set)
	// saves a resize here; ownership of the returned ExecuteResult.Rows
	// passes to the caller, so it is never put back.
	rows := [][]any(pool.GetRowSlice())
	for _, e := range envs {
		var row []any
		if star {
			for _, name := range starColumns {
				v, _ := e.Get(name)
				row = append(row, v)
			}
		}
		for _, item := range projection {
			if item.Star {
				continue
			}
			v, err := Eval(item.Expr, e)
			if err != nil {
				return nil, nil, err
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func sortEnvs(envs []*Env, orderBy []velesql.OrderItem) {
	sort.SliceStable(envs, func(i, j int) bool {
		for _, ord := range orderBy {
			vi, _ := Eval(ord.Expr, envs[i])
			vj, _ := Eval(ord.Expr, envs[j])
			if compare("=", vi, vj) {
				continue
			}
			less := compare("<", vi, vj)
			if ord.Descending {
				return !less && !compare("=", vi, vj)
			}
			return less
		}
		return false
	})
}

func applyLimitOffset(rows [][]any, limit, offset *int64) [][]any {
	start := 0
	if offset != nil && *offset > 0 {
		start = int(*offset)
	}
	if start >= len(rows) {
		return [][]any{}
	}
	rows = rows[start:]
	if limit != nil && *limit >= 0 && int(*limit) < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}
