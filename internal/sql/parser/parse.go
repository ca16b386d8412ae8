package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// reserved words cannot be used as bare table aliases.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true,
	"HAVING": true, "ORDER": true, "JOIN": true, "INNER": true, "LEFT": true,
	"RIGHT": true, "ON": true, "AS": true, "AND": true, "OR": true,
	"ASC": true, "DESC": true, "SET": true, "VALUES": true, "LIKE": true,
	"IN": true, "BETWEEN": true, "NULL": true,
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

// accept consumes the next token when it is s.
func (p *parser) accept(s string) bool {
	if p.peek().is(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.accept(s) {
		return fmt.Errorf("expected %s, found %s", s, p.peek())
	}
	return nil
}

// parseIdent validates an identifier (table/column/index name):
// first char letter or '_', rest letter/digit/'_'.
func (p *parser) parseIdent(what string) (string, error) {
	t := p.peek()
	if t.kind != tkWord {
		return "", fmt.Errorf("expected %s name, found %s", what, t)
	}
	for i, r := range t.text {
		if i == 0 && !unicode.IsLetter(r) && r != '_' {
			return "", fmt.Errorf("invalid %s name %q", what, t.text)
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", fmt.Errorf("invalid %s name %q", what, t.text)
		}
	}
	p.pos++
	return t.text, nil
}

// Parse parses a single SQL statement into an AST. A trailing ';' is optional.
// Any text outside the supported grammar yields a *sqlerr.ParseError.
func Parse(sql string) (Statement, error) {
	stmt, err := parse(sql)
	if err != nil {
		return nil, &sqlerr.ParseError{Reason: err.Error(), SQL: sql}
	}
	return stmt, nil
}

func parse(sql string) (Statement, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tkEOF || p.peek().is(";") {
		return nil, fmt.Errorf("empty statement")
	}

	var stmt Statement
	switch t := p.next(); {
	case t.is("SELECT"):
		stmt, err = p.parseSelect()
	case t.is("INSERT"):
		stmt, err = p.parseInsert()
	case t.is("UPDATE"):
		stmt, err = p.parseUpdate()
	case t.is("DELETE"):
		stmt, err = p.parseDelete()
	case t.is("CREATE"):
		switch {
		case p.accept("TABLE"):
			stmt, err = p.parseCreateTable()
		case p.accept("INDEX"):
			stmt, err = p.parseCreateIndex()
		default:
			err = fmt.Errorf("expected TABLE or INDEX after CREATE")
		}
	case t.is("DROP"):
		switch {
		case p.accept("TABLE"):
			stmt, err = p.parseDropTable()
		case p.accept("INDEX"):
			stmt, err = p.parseDropIndex()
		default:
			err = fmt.Errorf("expected TABLE or INDEX after DROP")
		}
	case t.is("SHOW"):
		if err = p.expect("TABLES"); err == nil {
			stmt = &ShowTablesStmt{}
		}
	default:
		err = fmt.Errorf("unsupported statement starting with %s", t)
	}
	if err != nil {
		return nil, err
	}

	p.accept(";")
	if t := p.peek(); t.kind != tkEOF {
		return nil, fmt.Errorf("unexpected %s after statement", t)
	}
	return stmt, nil
}

// ----- DDL -----

func (p *parser) parseCreateTable() (Statement, error) {
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.accept(",") {
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		break
	}
	return &CreateTableStmt{TableName: name, Columns: cols}, nil
}

// parseColumnDef reads: name TYPE[(n)] [PRIMARY_KEY] [FOREIGN_KEY(t, c)] [INDEX]
// also accepting PRIMARY KEY, FOREIGN KEY REFERENCES t(c) and REFERENCES t(c).
func (p *parser) parseColumnDef() (ColumnDef, error) {
	var col ColumnDef
	name, err := p.parseIdent("column")
	if err != nil {
		return col, err
	}
	col.Name = name

	t := p.next()
	if t.kind != tkWord {
		return col, fmt.Errorf("expected type for column %s, found %s", name, t)
	}
	col.Type = strings.ToUpper(t.text)
	if p.accept("(") {
		n := p.next()
		if n.kind != tkNumber {
			return col, fmt.Errorf("expected type length for column %s, found %s", name, n)
		}
		if err := p.expect(")"); err != nil {
			return col, err
		}
		col.Type += "(" + n.text + ")"
	}

	for {
		switch {
		case p.accept("PRIMARY_KEY"):
			col.PrimaryKey = true
		case p.peek().is("PRIMARY") && p.peekAt(1).is("KEY"):
			p.pos += 2
			col.PrimaryKey = true
		case p.accept("FOREIGN_KEY"):
			ref, err := p.parseRefList()
			if err != nil {
				return col, err
			}
			col.References = ref
		case p.peek().is("FOREIGN") && p.peekAt(1).is("KEY"):
			p.pos += 2
			if err := p.expect("REFERENCES"); err != nil {
				return col, err
			}
			ref, err := p.parseRefCall()
			if err != nil {
				return col, err
			}
			col.References = ref
		case p.accept("REFERENCES"):
			ref, err := p.parseRefCall()
			if err != nil {
				return col, err
			}
			col.References = ref
		case p.accept("INDEX"):
			col.Index = true
		default:
			return col, nil
		}
	}
}

// parseRefList reads "(table, column)".
func (p *parser) parseRefList() (*ForeignKeyRef, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	if err := p.expect(","); err != nil {
		return nil, err
	}
	c, err := p.parseIdent("column")
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &ForeignKeyRef{Table: tbl, Column: c}, nil
}

// parseRefCall reads "table(column)".
func (p *parser) parseRefCall() (*ForeignKeyRef, error) {
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	c, err := p.parseIdent("column")
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &ForeignKeyRef{Table: tbl, Column: c}, nil
}

func (p *parser) parseDropTable() (Statement, error) {
	name, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{TableName: name}, nil
}

// CREATE INDEX name ON table (column)
func (p *parser) parseCreateIndex() (Statement, error) {
	idx, err := p.parseIdent("index")
	if err != nil {
		return nil, err
	}
	if err := p.expect("ON"); err != nil {
		return nil, err
	}
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	col, err := p.parseIdent("column")
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &CreateIndexStmt{IndexName: idx, TableName: tbl, Column: col}, nil
}

// DROP INDEX name ON table
func (p *parser) parseDropIndex() (Statement, error) {
	idx, err := p.parseIdent("index")
	if err != nil {
		return nil, err
	}
	if err := p.expect("ON"); err != nil {
		return nil, err
	}
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	return &DropIndexStmt{IndexName: idx, TableName: tbl}, nil
}

// ----- DML -----

// INSERT INTO t [(cols...)] VALUES (vals...)[, (vals...)]*
func (p *parser) parseInsert() (Statement, error) {
	if err := p.expect("INTO"); err != nil {
		return nil, err
	}
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{TableName: tbl}

	if p.accept("(") {
		for {
			c, err := p.parseIdent("column")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, c)
			if p.accept(",") {
				continue
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			break
		}
	}

	if err := p.expect("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expect("("); err != nil {
			return nil, err
		}
		var row []*LiteralExpr
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			row = append(row, lit)
			if p.accept(",") {
				continue
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			break
		}
		if stmt.Columns != nil && len(row) != len(stmt.Columns) {
			return nil, fmt.Errorf("%d columns but %d values", len(stmt.Columns), len(row))
		}
		stmt.Values = append(stmt.Values, row)
		if !p.accept(",") {
			break
		}
	}
	return stmt, nil
}

// UPDATE t SET a=1[, b='x'] [WHERE expr]
func (p *parser) parseUpdate() (Statement, error) {
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	if err := p.expect("SET"); err != nil {
		return nil, err
	}
	stmt := &UpdateStmt{TableName: tbl}
	for {
		col, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: lit})
		if !p.accept(",") {
			break
		}
	}
	if p.accept("WHERE") {
		if stmt.Where, err = p.parseExpr(false); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// DELETE FROM t [WHERE expr]
func (p *parser) parseDelete() (Statement, error) {
	if err := p.expect("FROM"); err != nil {
		return nil, err
	}
	tbl, err := p.parseIdent("table")
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{TableName: tbl}
	if p.accept("WHERE") {
		if stmt.Where, err = p.parseExpr(false); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// ----- SELECT -----

func (p *parser) parseSelect() (Statement, error) {
	stmt := &SelectStmt{}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if !p.accept(",") {
			break
		}
	}

	if err := p.expect("FROM"); err != nil {
		return nil, err
	}
	from, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.From = from

	for {
		kind, ok := p.parseJoinKind()
		if !ok {
			break
		}
		jc, err := p.parseJoin(kind)
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, jc)
	}

	if p.accept("WHERE") {
		if stmt.Where, err = p.parseExpr(false); err != nil {
			return nil, err
		}
	}
	if p.accept("GROUP") {
		if err := p.expect("BY"); err != nil {
			return nil, err
		}
		if stmt.GroupBy, err = p.parseColumnRef(); err != nil {
			return nil, err
		}
	}
	if p.accept("HAVING") {
		if stmt.Having, err = p.parseExpr(true); err != nil {
			return nil, err
		}
	}
	if p.accept("ORDER") {
		if err := p.expect("BY"); err != nil {
			return nil, err
		}
		key, err := p.parseValueRef(true)
		if err != nil {
			return nil, err
		}
		ob := &OrderBy{Key: key}
		switch {
		case p.accept("DESC"):
			ob.Desc = true
		case p.accept("ASC"):
		}
		stmt.OrderBy = ob
	}
	return stmt, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.accept("*") {
		return SelectItem{Star: true}, nil
	}
	if p.peek().kind == tkWord && p.peekAt(1).is(".") && p.peekAt(2).is("*") {
		q := p.next().text
		p.pos += 2
		return SelectItem{Star: true, StarQualifier: q}, nil
	}
	expr, err := p.parseValueRef(true)
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: expr}
	if p.accept("AS") {
		if item.Alias, err = p.parseIdent("alias"); err != nil {
			return SelectItem{}, err
		}
	}
	return item, nil
}

func (p *parser) parseTableRef() (TableRef, error) {
	name, err := p.parseIdent("table")
	if err != nil {
		return TableRef{}, err
	}
	ref := TableRef{Name: name}
	if p.accept("AS") {
		if ref.Alias, err = p.parseIdent("alias"); err != nil {
			return TableRef{}, err
		}
	} else if t := p.peek(); t.kind == tkWord && !reserved[strings.ToUpper(t.text)] {
		ref.Alias = p.next().text
	}
	return ref, nil
}

func (p *parser) parseJoinKind() (JoinKind, bool) {
	switch {
	case p.accept("JOIN"):
		return JoinInner, true
	case p.peek().is("INNER") && p.peekAt(1).is("JOIN"):
		p.pos += 2
		return JoinInner, true
	case p.peek().is("LEFT") && p.peekAt(1).is("JOIN"):
		p.pos += 2
		return JoinLeft, true
	case p.peek().is("RIGHT") && p.peekAt(1).is("JOIN"):
		p.pos += 2
		return JoinRight, true
	case p.peek().is("LEFT") && p.peekAt(1).is("OUTER") && p.peekAt(2).is("JOIN"):
		p.pos += 3
		return JoinLeft, true
	case p.peek().is("RIGHT") && p.peekAt(1).is("OUTER") && p.peekAt(2).is("JOIN"):
		p.pos += 3
		return JoinRight, true
	}
	return JoinInner, false
}

func (p *parser) parseJoin(kind JoinKind) (JoinClause, error) {
	tbl, err := p.parseTableRef()
	if err != nil {
		return JoinClause{}, err
	}
	if err := p.expect("ON"); err != nil {
		return JoinClause{}, err
	}
	left, err := p.parseColumnRef()
	if err != nil {
		return JoinClause{}, err
	}
	if err := p.expect("="); err != nil {
		return JoinClause{}, fmt.Errorf("join condition must be an equality: %w", err)
	}
	right, err := p.parseColumnRef()
	if err != nil {
		return JoinClause{}, err
	}
	return JoinClause{Kind: kind, Table: tbl, Left: left, Right: right}, nil
}

func (p *parser) parseColumnRef() (*ColumnRef, error) {
	first, err := p.parseIdent("column")
	if err != nil {
		return nil, err
	}
	if p.accept(".") {
		name, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Qualifier: first, Name: name}, nil
	}
	return &ColumnRef{Name: first}, nil
}

// parseValueRef reads a column reference, or an aggregate call when
// allowAgg is set.
func (p *parser) parseValueRef(allowAgg bool) (Operand, error) {
	t := p.peek()
	if t.kind == tkWord && p.peekAt(1).is("(") && IsAggregateFunc(t.text) {
		if !allowAgg {
			return nil, fmt.Errorf("aggregate %s not allowed here", strings.ToUpper(t.text))
		}
		p.pos += 2
		agg := &AggregateRef{Func: strings.ToUpper(t.text)}
		if p.accept("*") {
			if agg.Func != "COUNT" {
				return nil, fmt.Errorf("%s(*) is not supported", agg.Func)
			}
		} else {
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			agg.Arg = col
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return agg, nil
	}
	return p.parseColumnRef()
}

// parseLiteral reads NULL, a quoted string or a signed number.
func (p *parser) parseLiteral() (*LiteralExpr, error) {
	t := p.next()
	switch {
	case t.is("NULL"):
		return &LiteralExpr{Value: nil}, nil
	case t.kind == tkString:
		return &LiteralExpr{Value: t.text}, nil
	case t.is("-") || t.is("+"):
		n := p.next()
		if n.kind != tkNumber {
			return nil, fmt.Errorf("expected number after %q, found %s", t.text, n)
		}
		v, err := parseNumber(t.text + n.text)
		if err != nil {
			return nil, err
		}
		return &LiteralExpr{Value: v}, nil
	case t.kind == tkNumber:
		v, err := parseNumber(t.text)
		if err != nil {
			return nil, err
		}
		return &LiteralExpr{Value: v}, nil
	}
	return nil, fmt.Errorf("expected literal, found %s", t)
}

func parseNumber(s string) (any, error) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed number %q", s)
		}
		return f, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed number %q", s)
	}
	return i, nil
}
