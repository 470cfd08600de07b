package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/velesdb/veles/pkg/graph"
	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// Env resolves names during expression evaluation. Get backs bare
// identifiers and alias-qualified property paths for a single candidate
// row (a SELECT row or a MATCH binding set); Bindings backs MATCH's
// alias -> node resolution directly so projected node properties don't
// need a synthetic column name. Similarity backs the `similarity(col,
// $v)` scalar builtin, generalizing the teacher's property-expression
// evaluator (pkg/cypher/executor.go's evaluateExpression family) from
// string-sliced operands to typed AST nodes.
type Env struct {
	Params          map[string]any
	Get             func(name string) (any, bool)
	Bindings        map[string]*graph.Node
	Similarity      func(column string, vec []float32) (float64, bool)
	Aggregates      map[string]any
	ResolveSubquery func(sub *velesql.Subquery) (any, error)
}

// Eval evaluates expr against env, returning a Go value (int64, float64,
// string, bool, time.Time, []any, or nil for SQL NULL).
func Eval(expr velesql.Expr, env *Env) (any, error) {
	switch e := expr.(type) {
	case *velesql.Literal:
		return e.Value, nil

	case *velesql.Parameter:
		v, ok := env.Params[e.Name]
		if !ok {
			return nil, veles.Newf(veles.KindInvalidValue, "unknown parameter $%s", e.Name).WithDetail("parameter", e.Name)
		}
		return v, nil

	case *velesql.Identifier:
		if env.Get == nil {
			return nil, nil
		}
		v, _ := env.Get(e.Name)
		return v, nil

	case *velesql.PropertyAccess:
		if env.Bindings != nil {
			if node, ok := env.Bindings[e.Alias]; ok {
				if node == nil {
					return nil, nil
				}
				pv, ok := node.Properties[e.Property]
				if !ok {
					return nil, nil
				}
				return pv.Any(), nil
			}
		}
		if env.Get == nil {
			return nil, nil
		}
		if v, ok := env.Get(e.Alias + "." + e.Property); ok {
			return v, nil
		}
		v, _ := env.Get(e.Property)
		return v, nil

	case *velesql.ArrayLiteral:
		out := make([]any, len(e.Elements))
		for i, el := range e.Elements {
			v, err := Eval(el, env)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *velesql.IntervalLiteral:
		return intervalDuration(e), nil

	case *velesql.UnaryExpr:
		return evalUnary(e, env)

	case *velesql.BinaryExpr:
		return evalBinary(e, env)

	case *velesql.FunctionCall:
		return evalFunctionCall(e, env)

	case *velesql.Subquery:
		if env.ResolveSubquery != nil {
			return env.ResolveSubquery(e)
		}
		return nil, veles.New(veles.KindUnsupportedFeature, "subquery must be resolved before evaluation").WithDetail("feature", "unresolved_subquery")

	case *velesql.NearPredicate, *velesql.NearFusedPredicate, *velesql.MatchTextPredicate:
		return nil, veles.New(veles.KindUnsupportedFeature, "NEAR/NEAR_FUSED/MATCH predicates must be top-level WHERE terms").WithDetail("feature", "nested_search_predicate")

	default:
		return nil, veles.Newf(veles.KindUnsupportedFeature, "unsupported expression %T", expr).WithDetail("feature", fmt.Sprintf("%T", expr))
	}
}

func intervalDuration(lit *velesql.IntervalLiteral) time.Duration {
	unit := time.Hour * 24
	switch strings.ToLower(lit.Unit) {
	case "s", "sec", "second", "seconds":
		unit = time.Second
	case "m", "min", "minute", "minutes":
		unit = time.Minute
	case "h", "hour", "hours":
		unit = time.Hour
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "w", "week", "weeks":
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(lit.Quantity) * unit
}

func evalUnary(e *velesql.UnaryExpr, env *Env) (any, error) {
	v, err := Eval(e.Operand, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "NOT":
		b, ok := asBool(v)
		if !ok {
			return nil, nil
		}
		return !b, nil
	case "-":
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, veles.New(veles.KindInvalidValue, "unary minus on non-numeric value")
	default:
		return nil, veles.Newf(veles.KindUnsupportedFeature, "unary operator %q", e.Op).WithDetail("feature", e.Op)
	}
}

func evalBinary(e *velesql.BinaryExpr, env *Env) (any, error) {
	switch e.Op {
	case "AND":
		l, err := Eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		if lb, ok := asBool(l); ok && !lb {
			return false, nil
		}
		r, err := Eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		lb, lok := asBool(l)
		rb, rok := asBool(r)
		if !lok || !rok {
			return nil, nil
		}
		return lb && rb, nil
	case "OR":
		l, err := Eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		if lb, ok := asBool(l); ok && lb {
			return true, nil
		}
		r, err := Eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		lb, lok := asBool(l)
		rb, rok := asBool(r)
		if !lok || !rok {
			return nil, nil
		}
		return lb || rb, nil
	}

	l, err := Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return compare(e.Op, l, r), nil
	case "IN":
		return inList(l, r), nil
	case "+":
		if ls, ok := l.(string); ok {
			rs, _ := asString(r)
			return ls + rs, nil
		}
		if t, d, ok := timeAndDuration(l, r); ok {
			return t.Add(d), nil
		}
		return arith("+", l, r)
	case "-":
		if t, d, ok := timeAndDuration(l, r); ok {
			return t.Add(-d), nil
		}
		return arith(e.Op, l, r)
	case "*", "/":
		return arith(e.Op, l, r)
	default:
		return nil, veles.Newf(veles.KindUnsupportedFeature, "binary operator %q", e.Op).WithDetail("feature", e.Op)
	}
}

func evalFunctionCall(fc *velesql.FunctionCall, env *Env) (any, error) {
	if env.Aggregates != nil {
		if v, ok := env.Aggregates[aggregateKey(fc)]; ok {
			return v, nil
		}
	}
	switch strings.ToUpper(fc.Name) {
	case "NOW":
		return time.Now().UTC(), nil
	case "SIMILARITY":
		if len(fc.Args) != 2 || env.Similarity == nil {
			return nil, veles.New(veles.KindUnsupportedFeature, "similarity() requires a vector column and a vector parameter").WithDetail("feature", "similarity")
		}
		col, ok := fc.Args[0].(*velesql.Identifier)
		if !ok {
			return nil, veles.New(veles.KindInvalidValue, "similarity() first argument must be a column name")
		}
		raw, err := Eval(fc.Args[1], env)
		if err != nil {
			return nil, err
		}
		vec, err := asVector(raw)
		if err != nil {
			return nil, err
		}
		score, ok := env.Similarity(col.Name, vec)
		if !ok {
			return nil, nil
		}
		return score, nil
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return nil, veles.Newf(veles.KindAggregationError, "aggregate %s() used outside an aggregated projection", fc.Name)
	default:
		return nil, veles.Newf(veles.KindUnsupportedFeature, "unknown function %s", fc.Name).WithDetail("feature", fc.Name)
	}
}

// aggregateKey renders a FunctionCall into a canonical string used to
// correlate a projection/HAVING reference with its precomputed per-group
// value, since aggregate calls are evaluated once per group rather than
// through the generic scalar Eval path.
func aggregateKey(fc *velesql.FunctionCall) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(fc.Name))
	b.WriteByte('(')
	if fc.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(fc.Args) == 0 {
		b.WriteByte('*')
	}
	for i, a := range fc.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(exprText(a))
	}
	b.WriteByte(')')
	return b.String()
}

func exprText(e velesql.Expr) string {
	switch v := e.(type) {
	case *velesql.Identifier:
		return v.Name
	case *velesql.PropertyAccess:
		return v.Alias + "." + v.Property
	case *velesql.Literal:
		return fmt.Sprintf("%v", v.Value)
	case *velesql.FunctionCall:
		return aggregateKey(v)
	default:
		return fmt.Sprintf("%T", e)
	}
}

func isAggregateCall(e velesql.Expr) (*velesql.FunctionCall, bool) {
	fc, ok := e.(*velesql.FunctionCall)
	if !ok {
		return nil, false
	}
	switch strings.ToUpper(fc.Name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return fc, true
	default:
		return nil, false
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return fmt.Sprintf("%v", v), v != nil
	}
}

func asVector(v any) ([]float32, error) {
	switch vv := v.(type) {
	case []float32:
		return vv, nil
	case []any:
		out := make([]float32, len(vv))
		for i, x := range vv {
			f, ok := toFloat(x)
			if !ok {
				return nil, veles.New(veles.KindInvalidValue, "vector parameter element is not numeric")
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, veles.New(veles.KindInvalidValue, "parameter is not a vector")
	}
}

// timeAndDuration recognizes a `timestamp +/- INTERVAL` operand pair
// regardless of argument order, per §4.H's temporal arithmetic grammar
// `ts > NOW() - INTERVAL '7d'`.
func timeAndDuration(l, r any) (time.Time, time.Duration, bool) {
	if t, ok := l.(time.Time); ok {
		if d, ok := r.(time.Duration); ok {
			return t, d, true
		}
	}
	return time.Time{}, 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// compare implements SQL-style three-valued comparison: either operand
// being nil (unknown) makes the predicate false rather than erroring, so
// WHERE clauses over sparse columns behave like missing-property MATCH
// filters already do.
func compare(op string, l, r any) bool {
	if l == nil || r == nil {
		return false
	}
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return compareOrdered(op, cmpFloat(lf, rf))
		}
	}
	if lt, lok := l.(time.Time); lok {
		if rt, rok := r.(time.Time); rok {
			return compareOrdered(op, cmpTime(lt, rt))
		}
	}
	ls, lok := asString(l)
	rs, rok := asString(r)
	if lok && rok {
		return compareOrdered(op, strings.Compare(ls, rs))
	}
	if op == "=" {
		return l == r
	}
	if op == "!=" || op == "<>" {
		return l != r
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func compareOrdered(op string, c int) bool {
	switch op {
	case "=":
		return c == 0
	case "!=", "<>":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	default:
		return false
	}
}

func inList(l, r any) bool {
	list, ok := r.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if compare("=", l, item) {
			return true
		}
	}
	return false
}

func arith(op string, l, r any) (any, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, veles.New(veles.KindInvalidValue, "arithmetic on non-numeric operand")
	}
	_, lIsInt := l.(int64)
	_, rIsInt := r.(int64)
	var out float64
	switch op {
	case "+":
		out = lf + rf
	case "-":
		out = lf - rf
	case "*":
		out = lf * rf
	case "/":
		if rf == 0 {
			return nil, veles.New(veles.KindInvalidValue, "division by zero")
		}
		out = lf / rf
	}
	if lIsInt && rIsInt && op != "/" {
		return int64(out), nil
	}
	return out, nil
}
