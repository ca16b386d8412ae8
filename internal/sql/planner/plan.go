package planner

import (
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/parser"
)

// Plan is the interface for executable plans.
type Plan interface {
	planNode()
}

// ----- DDL -----

type CreateTablePlan struct {
	TableName string
	Schema    record.Schema
}

func (*CreateTablePlan) planNode() {}

type DropTablePlan struct {
	TableName string
}

func (*DropTablePlan) planNode() {}

type CreateIndexPlan struct {
	IndexName string
	TableName string
	Column    string
}

func (*CreateIndexPlan) planNode() {}

type DropIndexPlan struct {
	IndexName string
	TableName string
}

func (*DropIndexPlan) planNode() {}

type ShowTablesPlan struct{}

func (*ShowTablesPlan) planNode() {}

// ----- DML -----

type InsertPlan struct {
	TableName string
	Columns   []string // nil: all columns in schema order
	Rows      [][]any
}

func (*InsertPlan) planNode() {}

type Assignment struct {
	Column string
	Value  any
}

type UpdatePlan struct {
	TableName   string
	Assignments []Assignment
	Where       parser.Expr
}

func (*UpdatePlan) planNode() {}

type DeletePlan struct {
	TableName string
	Where     parser.Expr
}

func (*DeletePlan) planNode() {}

// ----- SELECT -----

type AccessKind uint8

const (
	SeqScan AccessKind = iota
	IndexLookup
)

func (k AccessKind) String() string {
	if k == IndexLookup {
		return "index_lookup"
	}
	return "seq_scan"
}

// Access is how rows of the main table are read. For IndexLookup, rows
// whose Column equals Value are fetched through Index; the full WHERE is
// still applied afterwards.
type Access struct {
	Kind   AccessKind
	Index  string
	Column string
	Value  any
}

type JoinStrategy uint8

const (
	// JoinAuto picks nested loop or sort-merge by input size.
	JoinAuto JoinStrategy = iota
	JoinNestedLoop
	JoinSortMerge
)

func (s JoinStrategy) String() string {
	switch s {
	case JoinNestedLoop:
		return "nested_loop"
	case JoinSortMerge:
		return "sort_merge"
	default:
		return "auto"
	}
}

// SelectPlan runs Scan/Lookup -> Join* -> Filter -> Group -> Aggregate ->
// Having -> Sort -> Project over Stmt.
type SelectPlan struct {
	Stmt   *parser.SelectStmt
	Access Access
	Join   JoinStrategy

	// Aggregated is set when the query groups or uses aggregates;
	// Aggregates lists every distinct aggregate the query references.
	Aggregated bool
	Aggregates []*parser.AggregateRef
}

func (*SelectPlan) planNode() {}
