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

// frame is an intermediate row set with its shape.
type frame struct {
	scope eval.Scope
	rows  [][]any
}

func (f *frame) row(i int) eval.Row {
	return eval.Row{Scope: f.scope, Values: f.rows[i]}
}

// execSelect runs Scan/Lookup -> Join* -> Filter -> Group -> Aggregate ->
// Having -> Sort -> Project.
func (q *query) execSelect(p *planner.SelectPlan) (*Result, error) {
	s := p.Stmt
	if err := eval.Validate(s.Where); err != nil {
		return nil, err
	}
	if err := eval.Validate(s.Having); err != nil {
		return nil, err
	}

	f, err := q.readMain(p)
	if err != nil {
		return nil, err
	}
	for _, j := range s.Joins {
		if f, err = q.join(p, f, j); err != nil {
			return nil, err
		}
	}
	if f, err = q.filter(f, s.Where); err != nil {
		return nil, err
	}

	if p.Aggregated {
		if f, err = q.aggregate(p, f); err != nil {
			return nil, err
		}
		if f, err = q.filter(f, s.Having); err != nil {
			return nil, err
		}
	}

	if s.OrderBy != nil {
		sortFrame(f, s)
	}
	return project(f, s)
}

func (q *query) readMain(p *planner.SelectPlan) (*frame, error) {
	from := p.Stmt.From
	schema, err := q.DB.Schema(from.Name)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if p.Access.Kind == planner.IndexLookup {
		rows, err = q.DB.LookupRows(from.Name, p.Access.Column, p.Access.Value)
		q.opts.Metrics.ObserveIndexLookup()
	} else {
		rows, err = q.DB.Scan(from.Name)
	}
	if err != nil {
		return nil, err
	}
	q.opts.Metrics.ObserveRowsScanned(len(rows))
	return &frame{scope: eval.TableScope(from.Ref(), schema.ColumnNames()), rows: rows}, nil
}

func (q *query) filter(f *frame, where parser.Expr) (*frame, error) {
	if where == nil {
		return f, nil
	}
	out := make([][]any, 0, len(f.rows))
	for i := range f.rows {
		ok, err := q.matches(where, f.row(i))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f.rows[i])
		}
	}
	return &frame{scope: f.scope, rows: out}, nil
}

// sortFrame orders rows by the ORDER BY key; ties keep their order and
// NULLs sort first ascending. A key that does not resolve sorts as NULL.
func sortFrame(f *frame, s *parser.SelectStmt) {
	scope := withAliases(f.scope, s.Items)
	keys := make([]any, len(f.rows))
	for i, r := range f.rows {
		keys[i], _ = eval.Row{Scope: scope, Values: r}.Resolve(s.OrderBy.Key)
	}

	idx := make([]int, len(f.rows))
	for i := range idx {
		idx[i] = i
	}
	desc := s.OrderBy.Desc
	sort.SliceStable(idx, func(a, b int) bool {
		c := record.CompareNullsFirst(keys[idx[a]], keys[idx[b]])
		if desc {
			return c > 0
		}
		return c < 0
	})

	sorted := make([][]any, len(idx))
	for i, k := range idx {
		sorted[i] = f.rows[k]
	}
	f.rows = sorted
}

// withAliases lets ORDER BY name a select-list alias of a plain column.
func withAliases(scope eval.Scope, items []parser.SelectItem) eval.Scope {
	out := append(eval.Scope(nil), scope...)
	for _, it := range items {
		if it.Alias == "" {
			continue
		}
		col, ok := it.Expr.(*parser.ColumnRef)
		if !ok {
			continue
		}
		if i, ok := out.IndexOf(col); ok && out[i].Alias == "" {
			out[i].Alias = it.Alias
		}
	}
	return out
}

// project builds the output shape. Columns that do not resolve are NULL.
func project(f *frame, s *parser.SelectStmt) (*Result, error) {
	type source struct {
		pos int // position in the frame, or -1
		op  parser.Operand
	}
	var (
		cols    []string
		sources []source
	)
	for _, it := range s.Items {
		if !it.Star {
			cols = append(cols, it.Name())
			sources = append(sources, source{pos: -1, op: it.Expr})
			continue
		}
		found := false
		for i, c := range f.scope {
			if c.Agg != nil || (it.StarQualifier != "" && c.Qualifier != it.StarQualifier) {
				continue
			}
			found = true
			cols = append(cols, c.Name)
			sources = append(sources, source{pos: i})
		}
		if !found && it.StarQualifier != "" {
			return nil, &sqlerr.SchemaError{Reason: fmt.Sprintf("unknown table or alias %s in %s.*", it.StarQualifier, it.StarQualifier)}
		}
	}

	res := &Result{Columns: cols, Rows: make([][]any, 0, len(f.rows))}
	for i := range f.rows {
		r := f.row(i)
		out := make([]any, len(sources))
		for j, src := range sources {
			if src.pos >= 0 {
				out[j] = r.Values[src.pos]
				continue
			}
			v, err := r.Resolve(src.op)
			if err != nil {
				v = nil
			}
			out[j] = v
		}
		res.Rows = append(res.Rows, out)
	}
	res.AffectedRows = int64(len(res.Rows))
	return res, nil
}
