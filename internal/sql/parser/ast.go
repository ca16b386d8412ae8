package parser

import "strings"

// Statement is the root interface for all SQL statements.
type Statement interface {
	stmtNode()
}

// ----- CREATE TABLE -----

// ForeignKeyRef is the FOREIGN_KEY(table, column) marker of a column.
type ForeignKeyRef struct {
	Table  string
	Column string
}

type ColumnDef struct {
	Name       string
	Type       string // declared spelling, e.g. "VARCHAR(20)"
	PrimaryKey bool
	References *ForeignKeyRef
	Index      bool
}

type CreateTableStmt struct {
	TableName string
	Columns   []ColumnDef
}

func (*CreateTableStmt) stmtNode() {}

type DropTableStmt struct {
	TableName string
}

func (*DropTableStmt) stmtNode() {}

// ----- INDEX -----
type CreateIndexStmt struct {
	IndexName string
	TableName string
	Column    string
}

func (*CreateIndexStmt) stmtNode() {}

type DropIndexStmt struct {
	IndexName string
	TableName string
}

func (*DropIndexStmt) stmtNode() {}

// ----- INSERT / UPDATE / DELETE -----

// InsertStmt holds one or more VALUES tuples. Columns is nil when the
// statement names no column list.
type InsertStmt struct {
	TableName string
	Columns   []string
	Values    [][]*LiteralExpr
}

func (*InsertStmt) stmtNode() {}

type Assignment struct {
	Column string
	Value  *LiteralExpr
}

type UpdateStmt struct {
	TableName   string
	Assignments []Assignment
	Where       Expr
}

func (*UpdateStmt) stmtNode() {}

type DeleteStmt struct {
	TableName string
	Where     Expr
}

func (*DeleteStmt) stmtNode() {}

// ----- SELECT -----

type TableRef struct {
	Name  string
	Alias string
}

// Ref is the name rows of this table are qualified with.
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

type JoinKind uint8

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

func (k JoinKind) String() string {
	switch k {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	default:
		return "INNER"
	}
}

// JoinClause is [INNER|LEFT|RIGHT] JOIN Table ON Left = Right.
type JoinClause struct {
	Kind  JoinKind
	Table TableRef
	Left  *ColumnRef
	Right *ColumnRef
}

// SelectItem is one entry of the select list: '*', 'q.*', a column or an
// aggregate, with an optional alias.
type SelectItem struct {
	Star          bool
	StarQualifier string
	Expr          Operand // *ColumnRef or *AggregateRef
	Alias         string
}

// Name is the output column name of a non-star item.
func (it SelectItem) Name() string {
	if it.Alias != "" {
		return it.Alias
	}
	switch e := it.Expr.(type) {
	case *ColumnRef:
		return e.Name
	case *AggregateRef:
		return e.String()
	default:
		return ""
	}
}

type OrderBy struct {
	Key  Operand // *ColumnRef or *AggregateRef
	Desc bool
}

type SelectStmt struct {
	Items   []SelectItem
	From    TableRef
	Joins   []JoinClause
	Where   Expr
	GroupBy *ColumnRef
	Having  Expr
	OrderBy *OrderBy
}

func (*SelectStmt) stmtNode() {}

type ShowTablesStmt struct{}

func (*ShowTablesStmt) stmtNode() {}

// ----- Expressions -----

// Expr is a boolean expression used by WHERE and HAVING.
type Expr interface {
	exprNode()
}

type LogicOp uint8

const (
	OpAnd LogicOp = iota + 1
	OpOr
)

func (o LogicOp) String() string {
	if o == OpOr {
		return "OR"
	}
	return "AND"
}

type BinaryExpr struct {
	Op    LogicOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

type CompareOp string

const (
	OpEq   CompareOp = "="
	OpNe   CompareOp = "!="
	OpLt   CompareOp = "<"
	OpGt   CompareOp = ">"
	OpLe   CompareOp = "<="
	OpGe   CompareOp = ">="
	OpLike CompareOp = "LIKE"
)

type CompareExpr struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

func (*CompareExpr) exprNode() {}

// BetweenExpr is Target >= Low AND Target <= High.
type BetweenExpr struct {
	Target Operand
	Low    Operand
	High   Operand
}

func (*BetweenExpr) exprNode() {}

type InExpr struct {
	Target Operand
	List   []Operand
}

func (*InExpr) exprNode() {}

// Operand is a value-producing leaf of an expression.
type Operand interface {
	operandNode()
}

// ColumnRef names a column, optionally qualified by a table name or alias.
type ColumnRef struct {
	Qualifier string
	Name      string
}

func (*ColumnRef) operandNode() {}

func (c *ColumnRef) String() string {
	if c.Qualifier != "" {
		return c.Qualifier + "." + c.Name
	}
	return c.Name
}

// AggregateRef is FUNC(column) or COUNT(*); Arg is nil for '*'.
type AggregateRef struct {
	Func string // MAX, MIN, SUM, AVG, COUNT
	Arg  *ColumnRef
}

func (*AggregateRef) operandNode() {}

// String is the default output name, e.g. "AVG(salary)".
func (a *AggregateRef) String() string {
	arg := "*"
	if a.Arg != nil {
		arg = a.Arg.String()
	}
	return a.Func + "(" + arg + ")"
}

// LiteralExpr holds int64, float64, string or nil (NULL).
type LiteralExpr struct {
	Value any
}

func (*LiteralExpr) operandNode() {}

// IsAggregateFunc reports whether name is one of the supported aggregates.
func IsAggregateFunc(name string) bool {
	switch strings.ToUpper(name) {
	case "MAX", "MIN", "SUM", "AVG", "COUNT":
		return true
	}
	return false
}
