package planner

import (
	"fmt"

	"github.com/tuannm99/flatsql/internal/engine"
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/eval"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// Catalog is what the planner needs to know about tables.
type Catalog interface {
	Schema(table string) (record.Schema, error)
	IndexFor(table, column string) (string, bool)
}

var _ Catalog = (*engine.Database)(nil)

type Options struct {
	UseIndexes bool
	Join       JoinStrategy
}

// BuildPlan builds a physical plan from an AST Statement. cat may be nil
// for statements that need no catalog access.
func BuildPlan(stmt parser.Statement, cat Catalog, opts Options) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return buildCreateTablePlan(s)
	case *parser.DropTableStmt:
		return &DropTablePlan{TableName: s.TableName}, nil
	case *parser.CreateIndexStmt:
		return &CreateIndexPlan{IndexName: s.IndexName, TableName: s.TableName, Column: s.Column}, nil
	case *parser.DropIndexStmt:
		return &DropIndexPlan{IndexName: s.IndexName, TableName: s.TableName}, nil
	case *parser.ShowTablesStmt:
		return &ShowTablesPlan{}, nil
	case *parser.InsertStmt:
		return buildInsertPlan(s), nil
	case *parser.UpdateStmt:
		return buildUpdatePlan(s), nil
	case *parser.DeleteStmt:
		return &DeletePlan{TableName: s.TableName, Where: s.Where}, nil
	case *parser.SelectStmt:
		return buildSelectPlan(s, cat, opts)
	default:
		return nil, &sqlerr.ExecutionError{Reason: fmt.Sprintf("planner: unsupported statement type %T", stmt)}
	}
}

func buildCreateTablePlan(s *parser.CreateTableStmt) (Plan, error) {
	var schema record.Schema
	for _, c := range s.Columns {
		colType, err := record.ParseColumnType(c.Type)
		if err != nil {
			return nil, &sqlerr.SchemaError{Table: s.TableName, Column: c.Name, Reason: err.Error()}
		}
		schema.Cols = append(schema.Cols, record.Column{Name: c.Name, Type: colType})
		if c.PrimaryKey {
			schema.PrimaryKey = append(schema.PrimaryKey, c.Name)
		}
		if c.References != nil {
			schema.ForeignKeys = append(schema.ForeignKeys, record.ForeignKey{
				Column:    c.Name,
				RefTable:  c.References.Table,
				RefColumn: c.References.Column,
			})
		}
		if c.Index {
			schema.Indexes = append(schema.Indexes, record.IndexDef{
				Name:   engine.IndexName(s.TableName, c.Name),
				Column: c.Name,
			})
		}
	}
	return &CreateTablePlan{TableName: s.TableName, Schema: schema}, nil
}

func buildInsertPlan(s *parser.InsertStmt) Plan {
	rows := make([][]any, len(s.Values))
	for i, vals := range s.Values {
		row := make([]any, len(vals))
		for j, lit := range vals {
			row[j] = lit.Value
		}
		rows[i] = row
	}
	return &InsertPlan{TableName: s.TableName, Columns: s.Columns, Rows: rows}
}

func buildUpdatePlan(s *parser.UpdateStmt) Plan {
	assigns := make([]Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		assigns[i] = Assignment{Column: a.Column, Value: a.Value.Value}
	}
	return &UpdatePlan{TableName: s.TableName, Assignments: assigns, Where: s.Where}
}

func buildSelectPlan(s *parser.SelectStmt, cat Catalog, opts Options) (Plan, error) {
	plan := &SelectPlan{Stmt: s, Join: opts.Join}

	for _, it := range s.Items {
		if agg, ok := it.Expr.(*parser.AggregateRef); ok {
			plan.addAggregate(agg)
		}
	}
	collectAggregates(s.Having, plan.addAggregate)
	if s.OrderBy != nil {
		if agg, ok := s.OrderBy.Key.(*parser.AggregateRef); ok {
			plan.addAggregate(agg)
		}
	}
	plan.Aggregated = len(plan.Aggregates) > 0 || s.GroupBy != nil || s.Having != nil

	if plan.Aggregated {
		if err := checkAggregateShape(s); err != nil {
			return nil, err
		}
	}

	if opts.UseIndexes && cat != nil {
		plan.Access = chooseAccess(s, cat)
	}
	return plan, nil
}

func (p *SelectPlan) addAggregate(a *parser.AggregateRef) {
	for _, have := range p.Aggregates {
		if eval.SameAggregate(have, a) {
			return
		}
	}
	p.Aggregates = append(p.Aggregates, a)
}

func collectAggregates(e parser.Expr, add func(*parser.AggregateRef)) {
	visit := func(op parser.Operand) {
		if a, ok := op.(*parser.AggregateRef); ok {
			add(a)
		}
	}
	switch x := e.(type) {
	case *parser.BinaryExpr:
		collectAggregates(x.Left, add)
		collectAggregates(x.Right, add)
	case *parser.CompareExpr:
		visit(x.Left)
		visit(x.Right)
	case *parser.BetweenExpr:
		visit(x.Target)
	case *parser.InExpr:
		visit(x.Target)
	}
}

// checkAggregateShape rejects select lists that mix aggregates with columns
// other than the GROUP BY column.
func checkAggregateShape(s *parser.SelectStmt) error {
	for _, it := range s.Items {
		if it.Star {
			return &sqlerr.ExecutionError{Reason: "* cannot be combined with aggregates or GROUP BY"}
		}
		col, ok := it.Expr.(*parser.ColumnRef)
		if !ok {
			continue
		}
		if s.GroupBy == nil {
			return &sqlerr.ExecutionError{
				Reason: fmt.Sprintf("column %s must be aggregated when aggregates are used without GROUP BY", col)}
		}
		if !sameColumn(col, s.GroupBy) {
			return &sqlerr.ExecutionError{
				Reason: fmt.Sprintf("column %s is neither grouped nor aggregated", col)}
		}
	}
	return nil
}

func sameColumn(a, b *parser.ColumnRef) bool {
	return a.Name == b.Name && (a.Qualifier == "" || b.Qualifier == "" || a.Qualifier == b.Qualifier)
}

// chooseAccess picks an index lookup when WHERE is, or is an AND chain
// containing, an equality between an indexed main-table column and a literal.
func chooseAccess(s *parser.SelectStmt, cat Catalog) Access {
	schema, err := cat.Schema(s.From.Name)
	if err != nil {
		return Access{}
	}
	for _, cmp := range andTerms(s.Where) {
		col, lit := equalityOperands(cmp)
		if col == nil || lit == nil || lit.Value == nil {
			continue
		}
		if col.Qualifier != "" && col.Qualifier != s.From.Ref() {
			continue
		}
		if !schema.HasColumn(col.Name) {
			continue
		}
		if name, ok := cat.IndexFor(s.From.Name, col.Name); ok {
			return Access{Kind: IndexLookup, Index: name, Column: col.Name, Value: lit.Value}
		}
	}
	return Access{}
}

func andTerms(e parser.Expr) []*parser.CompareExpr {
	switch x := e.(type) {
	case *parser.CompareExpr:
		return []*parser.CompareExpr{x}
	case *parser.BinaryExpr:
		if x.Op != parser.OpAnd {
			return nil
		}
		return append(andTerms(x.Left), andTerms(x.Right)...)
	}
	return nil
}

func equalityOperands(c *parser.CompareExpr) (*parser.ColumnRef, *parser.LiteralExpr) {
	if c.Op != parser.OpEq {
		return nil, nil
	}
	if col, ok := c.Left.(*parser.ColumnRef); ok {
		if lit, ok := c.Right.(*parser.LiteralExpr); ok {
			return col, lit
		}
	}
	if col, ok := c.Right.(*parser.ColumnRef); ok {
		if lit, ok := c.Left.(*parser.LiteralExpr); ok {
			return col, lit
		}
	}
	return nil, nil
}
