package executor

import (
	"fmt"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/eval"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sql/planner"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// aggregate partitions f by the GROUP BY column and computes every aggregate
// of the plan. The resulting frame has the group column (if any) followed by
// one column per aggregate. Without GROUP BY the whole input is one group,
// so an empty input still yields one row.
func (q *query) aggregate(p *planner.SelectPlan, f *frame) (*frame, error) {
	s := p.Stmt

	groupPos := -1
	var scope eval.Scope
	if s.GroupBy != nil {
		pos, ok := f.scope.IndexOf(s.GroupBy)
		if !ok {
			return nil, &sqlerr.SchemaError{Column: s.GroupBy.Name, Reason: fmt.Sprintf("unknown GROUP BY column %s", s.GroupBy)}
		}
		groupPos = pos
		col := f.scope[pos]
		scope = append(scope, eval.Col{Qualifier: col.Qualifier, Name: col.Name, Alias: groupAlias(s)})
	}

	argPos := make([]int, len(p.Aggregates))
	for i, a := range p.Aggregates {
		argPos[i] = -1
		if a.Arg != nil {
			if pos, ok := f.scope.IndexOf(a.Arg); ok {
				argPos[i] = pos
			}
		}
		scope = append(scope, eval.Col{Agg: a, Alias: aggregateAlias(s, a)})
	}

	groups := partition(f.rows, groupPos)
	if groupPos < 0 && len(groups) == 0 {
		groups = []group{{}}
	}

	out := &frame{scope: scope, rows: make([][]any, 0, len(groups))}
	for _, g := range groups {
		row := make([]any, 0, len(scope))
		if groupPos >= 0 {
			row = append(row, g.key)
		}
		for i, a := range p.Aggregates {
			row = append(row, compute(a, argPos[i], g.rows))
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

type group struct {
	key  any
	rows [][]any
}

// partition groups rows by exact equality of the value at pos, in order of
// first appearance. NULLs form one group. pos < 0 puts every row in one group.
func partition(rows [][]any, pos int) []group {
	if pos < 0 {
		if len(rows) == 0 {
			return nil
		}
		return []group{{rows: rows}}
	}
	var out []group
	index := make(map[string]int)
	for _, r := range rows {
		id := "null"
		if k, ok := record.KeyOf(r[pos]); ok {
			id = k.Encode()
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, group{key: r[pos]})
		}
		out[i].rows = append(out[i].rows, r)
	}
	return out
}

func groupAlias(s *parser.SelectStmt) string {
	for _, it := range s.Items {
		if col, ok := it.Expr.(*parser.ColumnRef); ok && it.Alias != "" && col.Name == s.GroupBy.Name {
			return it.Alias
		}
	}
	return ""
}

func aggregateAlias(s *parser.SelectStmt, a *parser.AggregateRef) string {
	for _, it := range s.Items {
		if x, ok := it.Expr.(*parser.AggregateRef); ok && it.Alias != "" && eval.SameAggregate(x, a) {
			return it.Alias
		}
	}
	return ""
}

// compute evaluates one aggregate over rows. NULLs are skipped; SUM and AVG
// also skip non-numeric values. Over no values COUNT is 0 and the rest NULL.
func compute(a *parser.AggregateRef, pos int, rows [][]any) any {
	if a.Func == "COUNT" && a.Arg == nil {
		return int64(len(rows))
	}

	var vals []any
	if pos >= 0 {
		for _, r := range rows {
			if r[pos] != nil {
				vals = append(vals, r[pos])
			}
		}
	}

	switch a.Func {
	case "COUNT":
		return int64(len(vals))
	case "SUM", "AVG":
		var (
			isum   int64
			fsum   float64
			n      int
			allInt = true
		)
		for _, v := range vals {
			f, ok := record.ToNumber(v)
			if !ok {
				continue
			}
			n++
			fsum += f
			i, isInt := v.(int64)
			if !isInt || !allInt {
				allInt = false
				continue
			}
			sum, overflow := addInt64(isum, i)
			if overflow {
				// past int64 the float sum is the result
				allInt = false
				continue
			}
			isum = sum
		}
		if n == 0 {
			return nil
		}
		if a.Func == "AVG" {
			return fsum / float64(n)
		}
		if allInt {
			return isum
		}
		return fsum
	case "MIN", "MAX":
		var best any
		for _, v := range vals {
			if best == nil {
				best = v
				continue
			}
			c, _ := record.Compare(v, best)
			if (a.Func == "MIN" && c < 0) || (a.Func == "MAX" && c > 0) {
				best = v
			}
		}
		return best
	default:
		return nil
	}
}

func addInt64(a, b int64) (int64, bool) {
	s := a + b
	return s, (b > 0 && s < a) || (b < 0 && s > a)
}
