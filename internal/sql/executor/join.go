package executor

import (
	"fmt"
	"sort"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/eval"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sql/planner"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// pair is one output row of a join: left row index and right row index,
// -1 on the side that was filled with NULLs.
type pair struct{ l, r int }

func (q *query) join(p *planner.SelectPlan, left *frame, j parser.JoinClause) (*frame, error) {
	schema, err := q.DB.Schema(j.Table.Name)
	if err != nil {
		return nil, err
	}
	rrows, err := q.DB.Scan(j.Table.Name)
	if err != nil {
		return nil, err
	}
	q.opts.Metrics.ObserveRowsScanned(len(rrows))
	right := &frame{scope: eval.TableScope(j.Table.Ref(), schema.ColumnNames()), rows: rrows}

	lpos, rpos, err := joinColumns(left.scope, right.scope, j)
	if err != nil {
		return nil, err
	}

	strategy := p.Join
	if strategy == planner.JoinAuto {
		strategy = planner.JoinNestedLoop
		if len(left.rows) > q.opts.SortMergeThreshold || len(right.rows) > q.opts.SortMergeThreshold {
			strategy = planner.JoinSortMerge
		}
	}
	q.opts.Metrics.ObserveJoin(strategy.String())

	lkeys := columnValues(left.rows, lpos)
	rkeys := columnValues(right.rows, rpos)

	var pairs []pair
	switch j.Kind {
	case parser.JoinRight:
		// mirrored LEFT join, then swap the sides back
		pairs = matchRows(strategy, rkeys, lkeys, true)
		for i := range pairs {
			pairs[i].l, pairs[i].r = pairs[i].r, pairs[i].l
		}
	default:
		pairs = matchRows(strategy, lkeys, rkeys, j.Kind == parser.JoinLeft)
	}

	out := &frame{scope: left.scope.Concat(right.scope), rows: make([][]any, 0, len(pairs))}
	lw, rw := len(left.scope), len(right.scope)
	for _, pr := range pairs {
		row := make([]any, lw+rw)
		if pr.l >= 0 {
			copy(row, left.rows[pr.l])
		}
		if pr.r >= 0 {
			copy(row[lw:], right.rows[pr.r])
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// joinColumns resolves the ON columns: one side must name a column of the
// rows joined so far and the other a column of the joined table.
func joinColumns(left, right eval.Scope, j parser.JoinClause) (int, int, error) {
	if lp, ok := left.IndexOf(j.Left); ok {
		if rp, ok := right.IndexOf(j.Right); ok {
			return lp, rp, nil
		}
	}
	if lp, ok := left.IndexOf(j.Right); ok {
		if rp, ok := right.IndexOf(j.Left); ok {
			return lp, rp, nil
		}
	}
	return 0, 0, &sqlerr.SchemaError{
		Table:  j.Table.Name,
		Reason: fmt.Sprintf("join condition %s = %s does not link %s to the preceding tables", j.Left, j.Right, j.Table.Ref()),
	}
}

func columnValues(rows [][]any, pos int) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[pos]
	}
	return out
}

// matchRows pairs left and right rows with equal keys. With outer set,
// unmatched left rows are kept with r = -1. Both strategies return pairs
// ordered by left row, then right row.
func matchRows(strategy planner.JoinStrategy, left, right []any, outer bool) []pair {
	if strategy == planner.JoinSortMerge {
		return sortMergeJoin(left, right, outer)
	}
	return nestedLoopJoin(left, right, outer)
}

func nestedLoopJoin(left, right []any, outer bool) []pair {
	var out []pair
	for i, lv := range left {
		matched := false
		for j, rv := range right {
			if record.Equal(lv, rv) {
				out = append(out, pair{i, j})
				matched = true
			}
		}
		if !matched && outer {
			out = append(out, pair{i, -1})
		}
	}
	return out
}

type keyed struct {
	key record.Key
	pos int
}

// sortedKeys returns the non-NULL keys of vals sorted by key, then position.
// The input is not reordered.
func sortedKeys(vals []any) []keyed {
	out := make([]keyed, 0, len(vals))
	for i, v := range vals {
		if k, ok := record.KeyOf(v); ok {
			out = append(out, keyed{key: k, pos: i})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].key.Less(out[b].key) })
	return out
}

func sortMergeJoin(left, right []any, outer bool) []pair {
	ls, rs := sortedKeys(left), sortedKeys(right)
	matched := make([]bool, len(left))

	var out []pair
	i, j := 0, 0
	for i < len(ls) && j < len(rs) {
		switch {
		case ls[i].key.Less(rs[j].key):
			i++
		case rs[j].key.Less(ls[i].key):
			j++
		default:
			k := ls[i].key
			iEnd := i
			for iEnd < len(ls) && ls[iEnd].key == k {
				iEnd++
			}
			jEnd := j
			for jEnd < len(rs) && rs[jEnd].key == k {
				jEnd++
			}
			for a := i; a < iEnd; a++ {
				matched[ls[a].pos] = true
				for b := j; b < jEnd; b++ {
					out = append(out, pair{ls[a].pos, rs[b].pos})
				}
			}
			i, j = iEnd, jEnd
		}
	}
	if outer {
		for pos, m := range matched {
			if !m {
				out = append(out, pair{pos, -1})
			}
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].l != out[b].l {
			return out[a].l < out[b].l
		}
		return out[a].r < out[b].r
	})
	return out
}
