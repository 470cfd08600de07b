package query

import (
	"github.com/velesdb/veles/pkg/veles"
	"github.com/velesdb/veles/pkg/velesql"
)

// applyJoin materializes j's right-hand collection into an index keyed by
// its join column and merges it with leftEnvs, per §4.I "INNER/LEFT
// materialize right side into a column store keyed by join column;
// RIGHT/FULL parsed but UnsupportedFeature at execution". Only a single
// equality predicate `a.col = b.col` is supported as the ON clause, which
// is what makes the O(1) index lookup possible; anything richer is an
// UnsupportedFeature rather than a silent cross join.
func applyJoin(db *Database, leftEnvs []*Env, leftAlias string, j *velesql.JoinClause, params map[string]any) ([]*Env, []string, error) {
	if j.Kind == velesql.JoinRight || j.Kind == velesql.JoinFull {
		return nil, nil, veles.Newf(veles.KindUnsupportedFeature, "%s JOIN is not executable", j.Kind).WithDetail("feature", "join:"+string(j.Kind))
	}

	leftProp, rightProp, ok := extractEquiJoin(j.On, leftAlias, j.Alias)
	if !ok {
		return nil, nil, veles.New(veles.KindUnsupportedFeature, "JOIN ON must be a single equality between the two sides' columns").WithDetail("feature", "join:non_equi")
	}

	rightCol, err := db.Get(j.Collection)
	if err != nil {
		return nil, nil, err
	}

	index := map[string][]uint64{}
	for _, rowID := range rightCol.Columns.RowIDs() {
		v, ok := rightCol.Columns.Get(rowID, rightProp)
		if !ok {
			continue
		}
		index[sprintKey(v.Any())] = append(index[sprintKey(v.Any())], rowID)
	}

	var out []*Env
	for _, le := range leftEnvs {
		leftVal, _ := le.Get(leftAlias + "." + leftProp)
		if leftVal == nil {
			leftVal, _ = le.Get(leftProp)
		}
		matches := index[sprintKey(leftVal)]
		if len(matches) == 0 {
			if j.Kind == velesql.JoinLeft {
				out = append(out, mergeJoinEnv(le, j.Alias, rightCol, 0, false))
			}
			continue
		}
		for _, rowID := range matches {
			out = append(out, mergeJoinEnv(le, j.Alias, rightCol, rowID, true))
		}
	}
	return out, rightCol.Columns.ColumnNames(), nil
}

func mergeJoinEnv(left *Env, rightAlias string, rightCol *Collection, rightRowID uint64, present bool) *Env {
	merged := cloneEnv(left)
	prevGet := left.Get
	merged.Get = func(name string) (any, bool) {
		if present {
			if v, ok := rightCol.Columns.Get(rightRowID, name); ok {
				return v.Any(), true
			}
			if prop, ok := stripAlias(name, rightAlias); ok {
				if v, ok := rightCol.Columns.Get(rightRowID, prop); ok {
					return v.Any(), true
				}
			}
		}
		return prevGet(name)
	}
	return merged
}

func stripAlias(name, alias string) (string, bool) {
	prefix := alias + "."
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}

func extractEquiJoin(on velesql.Expr, leftAlias, rightAlias string) (leftProp, rightProp string, ok bool) {
	bin, isBin := on.(*velesql.BinaryExpr)
	if !isBin || bin.Op != "=" {
		return "", "", false
	}
	lp, lOK := propOf(bin.Left)
	rp, rOK := propOf(bin.Right)
	if !lOK || !rOK {
		return "", "", false
	}
	switch {
	case lp.Alias == leftAlias && rp.Alias == rightAlias:
		return lp.Property, rp.Property, true
	case lp.Alias == rightAlias && rp.Alias == leftAlias:
		return rp.Property, lp.Property, true
	default:
		return "", "", false
	}
}

func propOf(e velesql.Expr) (*velesql.PropertyAccess, bool) {
	p, ok := e.(*velesql.PropertyAccess)
	return p, ok
}
