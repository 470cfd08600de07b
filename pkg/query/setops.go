package query

import "github.com/velesdb/veles/pkg/velesql"

// applySetOp combines two already-executed results under op, per §4.I
// "UNION dedups by id, UNION ALL keeps duplicates, INTERSECT keeps common
// ids, EXCEPT removes right-side ids from left". Rows are keyed by their
// first projected column, which is the id in every compound-query example
// in §4.H's grammar (`SELECT id FROM a UNION ... SELECT id FROM b`).
func applySetOp(op velesql.SetOp, left, right *ExecuteResult) *ExecuteResult {
	switch op {
	case velesql.SetOpUnionAll:
		return &ExecuteResult{Columns: left.Columns, Rows: append(append([][]any{}, left.Rows...), right.Rows...)}
	case velesql.SetOpUnion:
		seen := map[string]bool{}
		var rows [][]any
		for _, r := range append(left.Rows, right.Rows...) {
			k := rowKey(r)
			if seen[k] {
				continue
			}
			seen[k] = true
			rows = append(rows, r)
		}
		return &ExecuteResult{Columns: left.Columns, Rows: rows}
	case velesql.SetOpIntersect:
		rightKeys := map[string]bool{}
		for _, r := range right.Rows {
			rightKeys[rowKey(r)] = true
		}
		seen := map[string]bool{}
		var rows [][]any
		for _, r := range left.Rows {
			k := rowKey(r)
			if rightKeys[k] && !seen[k] {
				seen[k] = true
				rows = append(rows, r)
			}
		}
		return &ExecuteResult{Columns: left.Columns, Rows: rows}
	case velesql.SetOpExcept:
		rightKeys := map[string]bool{}
		for _, r := range right.Rows {
			rightKeys[rowKey(r)] = true
		}
		seen := map[string]bool{}
		var rows [][]any
		for _, r := range left.Rows {
			k := rowKey(r)
			if !rightKeys[k] && !seen[k] {
				seen[k] = true
				rows = append(rows, r)
			}
		}
		return &ExecuteResult{Columns: left.Columns, Rows: rows}
	default:
		return left
	}
}

func rowKey(row []any) string {
	if len(row) == 0 {
		return ""
	}
	s, _ := asString(row[0])
	return s
}
