package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

type fakeCatalog struct {
	schemas map[string]record.Schema
	indexes map[string]string // "table.column" -> index name
}

func (f *fakeCatalog) Schema(table string) (record.Schema, error) {
	s, ok := f.schemas[table]
	if !ok {
		return record.Schema{}, &sqlerr.SchemaError{Table: table, Reason: "table not found"}
	}
	return s, nil
}

func (f *fakeCatalog) IndexFor(table, column string) (string, bool) {
	name, ok := f.indexes[table+"."+column]
	return name, ok
}

func companyCatalog() *fakeCatalog {
	return &fakeCatalog{
		schemas: map[string]record.Schema{
			"employees": {Cols: []record.Column{
				{Name: "id", Type: record.ColInt64},
				{Name: "name", Type: record.ColText},
				{Name: "dept_id", Type: record.ColInt64},
			}},
			"departments": {Cols: []record.Column{
				{Name: "id", Type: record.ColInt64},
				{Name: "title", Type: record.ColText},
			}},
		},
		indexes: map[string]string{
			"employees.dept_id": "idx_employees_dept_id",
			"departments.title": "idx_departments_title",
		},
	}
}

func mustBuild(t *testing.T, sql string, cat Catalog, opts Options) Plan {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	p, err := BuildPlan(stmt, cat, opts)
	require.NoError(t, err)
	return p
}

func TestBuildPlan_CreateTable_NoCatalogNeeded(t *testing.T) {
	p := mustBuild(t, `CREATE TABLE employees (
		id INT PRIMARY_KEY,
		name VARCHAR(50),
		dept_id INT FOREIGN_KEY(departments, id) INDEX,
		hired DATE
	)`, nil, Options{})

	plan, ok := p.(*CreateTablePlan)
	require.True(t, ok)
	require.Equal(t, "employees", plan.TableName)

	require.Len(t, plan.Schema.Cols, 4)
	require.Equal(t, record.ColInt64, plan.Schema.Cols[0].Type)
	require.Equal(t, record.ColText, plan.Schema.Cols[1].Type)
	require.Equal(t, record.ColYear, plan.Schema.Cols[3].Type)
	require.Equal(t, []string{"id"}, plan.Schema.PrimaryKey)
	require.Equal(t, []record.ForeignKey{{Column: "dept_id", RefTable: "departments", RefColumn: "id"}},
		plan.Schema.ForeignKeys)
	require.Equal(t, []record.IndexDef{{Name: "idx_employees_dept_id", Column: "dept_id"}}, plan.Schema.Indexes)
}

func TestBuildPlan_CreateTable_UnsupportedType(t *testing.T) {
	stmt := &parser.CreateTableStmt{
		TableName: "t",
		Columns:   []parser.ColumnDef{{Name: "flag", Type: "BOOL"}},
	}
	_, err := BuildPlan(stmt, nil, Options{})
	var se *sqlerr.SchemaError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "flag", se.Column)
}

func TestBuildPlan_SimpleStatements(t *testing.T) {
	// Drop table
	{
		p := mustBuild(t, "DROP TABLE users", nil, Options{})
		plan, ok := p.(*DropTablePlan)
		require.True(t, ok)
		require.Equal(t, "users", plan.TableName)
	}

	// Create / drop index
	{
		p := mustBuild(t, "CREATE INDEX idx_n ON users (name)", nil, Options{})
		plan, ok := p.(*CreateIndexPlan)
		require.True(t, ok)
		require.Equal(t, CreateIndexPlan{IndexName: "idx_n", TableName: "users", Column: "name"}, *plan)

		p = mustBuild(t, "DROP INDEX idx_n ON users", nil, Options{})
		dplan, ok := p.(*DropIndexPlan)
		require.True(t, ok)
		require.Equal(t, DropIndexPlan{IndexName: "idx_n", TableName: "users"}, *dplan)
	}

	// Show tables
	{
		p := mustBuild(t, "SHOW TABLES", nil, Options{})
		_, ok := p.(*ShowTablesPlan)
		require.True(t, ok)
	}

	// Insert
	{
		p := mustBuild(t, "INSERT INTO users (id, name) VALUES (1, 'a'), (2, NULL)", nil, Options{})
		plan, ok := p.(*InsertPlan)
		require.True(t, ok)
		require.Equal(t, []string{"id", "name"}, plan.Columns)
		require.Equal(t, [][]any{{int64(1), "a"}, {int64(2), nil}}, plan.Rows)
	}

	// Update / delete
	{
		p := mustBuild(t, "UPDATE users SET name = 'b', age = 3 WHERE id = 1", nil, Options{})
		plan, ok := p.(*UpdatePlan)
		require.True(t, ok)
		require.Equal(t, []Assignment{{Column: "name", Value: "b"}, {Column: "age", Value: int64(3)}}, plan.Assignments)
		require.NotNil(t, plan.Where)

		p = mustBuild(t, "DELETE FROM users", nil, Options{})
		dplan, ok := p.(*DeletePlan)
		require.True(t, ok)
		require.Nil(t, dplan.Where)
	}
}

func TestBuildPlan_UnsupportedStatement(t *testing.T) {
	_, err := BuildPlan(nil, nil, Options{})
	var xe *sqlerr.ExecutionError
	require.True(t, errors.As(err, &xe))
	require.Contains(t, xe.Reason, "unsupported statement type")
}

func TestBuildPlan_SelectAccessPath(t *testing.T) {
	cat := companyCatalog()
	on := Options{UseIndexes: true}

	cases := []struct {
		sql   string
		opts  Options
		want  AccessKind
		index string
		value any
	}{
		{"SELECT * FROM employees WHERE dept_id = 2", on, IndexLookup, "idx_employees_dept_id", int64(2)},
		{"SELECT * FROM employees WHERE 2 = dept_id", on, IndexLookup, "idx_employees_dept_id", int64(2)},
		{"SELECT * FROM employees e WHERE e.dept_id = 2 AND name = 'x'", on, IndexLookup, "idx_employees_dept_id", int64(2)},
		{"SELECT * FROM employees WHERE name = 'x' AND dept_id = 2", on, IndexLookup, "idx_employees_dept_id", int64(2)},
		{"SELECT * FROM employees WHERE dept_id = 2", Options{}, SeqScan, "", nil},
		{"SELECT * FROM employees WHERE dept_id = 2 OR id = 1", on, SeqScan, "", nil},
		{"SELECT * FROM employees WHERE dept_id > 2", on, SeqScan, "", nil},
		{"SELECT * FROM employees WHERE dept_id = NULL", on, SeqScan, "", nil},
		{"SELECT * FROM employees WHERE dept_id = id", on, SeqScan, "", nil},
		{"SELECT * FROM employees WHERE name = 'x'", on, SeqScan, "", nil},
		{"SELECT * FROM employees", on, SeqScan, "", nil},
		{"SELECT * FROM missing WHERE dept_id = 2", on, SeqScan, "", nil},
		// title belongs to the joined table, not the main one
		{"SELECT * FROM employees e JOIN departments d ON e.dept_id = d.id WHERE title = 'x'", on, SeqScan, "", nil},
		{"SELECT * FROM employees e JOIN departments d ON e.dept_id = d.id WHERE d.dept_id = 1", on, SeqScan, "", nil},
		{"SELECT * FROM employees e JOIN departments d ON e.dept_id = d.id WHERE e.dept_id = 1", on, IndexLookup, "idx_employees_dept_id", int64(1)},
	}
	for _, c := range cases {
		t.Run(c.sql, func(t *testing.T) {
			p := mustBuild(t, c.sql, cat, c.opts)
			plan, ok := p.(*SelectPlan)
			require.True(t, ok)
			require.Equal(t, c.want, plan.Access.Kind)
			if c.want == IndexLookup {
				require.Equal(t, c.index, plan.Access.Index)
				require.Equal(t, "dept_id", plan.Access.Column)
				require.Equal(t, c.value, plan.Access.Value)
			}
		})
	}
}

func TestBuildPlan_SelectAggregates(t *testing.T) {
	p := mustBuild(t, `SELECT dept_id, AVG(salary) AS avg_sal, COUNT(*) FROM employees
		GROUP BY dept_id HAVING AVG(salary) > 1000 AND MAX(salary) < 9 ORDER BY COUNT(*) DESC`,
		nil, Options{Join: JoinSortMerge})
	plan := p.(*SelectPlan)
	require.True(t, plan.Aggregated)
	require.Equal(t, JoinSortMerge, plan.Join)

	names := make([]string, len(plan.Aggregates))
	for i, a := range plan.Aggregates {
		names[i] = a.String()
	}
	require.Equal(t, []string{"AVG(salary)", "COUNT(*)", "MAX(salary)"}, names)

	p = mustBuild(t, "SELECT name FROM employees", nil, Options{})
	require.False(t, p.(*SelectPlan).Aggregated)

	p = mustBuild(t, "SELECT COUNT(*) FROM employees", nil, Options{})
	require.True(t, p.(*SelectPlan).Aggregated)
}

func TestBuildPlan_SelectAggregateShapeErrors(t *testing.T) {
	bad := []string{
		"SELECT * FROM employees GROUP BY dept_id",
		"SELECT name, COUNT(*) FROM employees",
		"SELECT name, COUNT(*) FROM employees GROUP BY dept_id",
		"SELECT e.dept_id FROM employees e GROUP BY d.dept_id",
	}
	for _, sql := range bad {
		t.Run(sql, func(t *testing.T) {
			stmt, err := parser.Parse(sql)
			require.NoError(t, err)
			_, err = BuildPlan(stmt, nil, Options{})
			var xe *sqlerr.ExecutionError
			require.ErrorAs(t, err, &xe)
		})
	}

	// qualified vs unqualified group column is fine
	mustBuild(t, "SELECT e.dept_id, COUNT(*) FROM employees e GROUP BY dept_id", nil, Options{})
}

func TestStrategyStrings(t *testing.T) {
	require.Equal(t, "seq_scan", SeqScan.String())
	require.Equal(t, "index_lookup", IndexLookup.String())
	require.Equal(t, "auto", JoinAuto.String())
	require.Equal(t, "nested_loop", JoinNestedLoop.String())
	require.Equal(t, "sort_merge", JoinSortMerge.String())
}
