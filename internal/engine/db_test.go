package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

func openTestDB(t *testing.T, dir string) *Database {
	t.Helper()
	db, err := Open(dir, Options{FallbackEncoding: "iso-8859-1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func usersSchema() record.Schema {
	return record.Schema{
		Cols: []record.Column{
			{Name: "id", Type: record.ColInt64},
			{Name: "name", Type: record.ColText},
			{Name: "born", Type: record.ColYear},
		},
		PrimaryKey: []string{"id"},
	}
}

// departments(id PK) and employees(id PK, dept_id FK -> departments.id, salary).
func setupCompany(t *testing.T, db *Database) {
	t.Helper()
	require.NoError(t, db.CreateTable("departments", record.Schema{
		Cols: []record.Column{
			{Name: "id", Type: record.ColInt64},
			{Name: "name", Type: record.ColText},
		},
		PrimaryKey: []string{"id"},
	}))
	require.NoError(t, db.CreateTable("employees", record.Schema{
		Cols: []record.Column{
			{Name: "id", Type: record.ColInt64},
			{Name: "dept_id", Type: record.ColInt64},
			{Name: "salary", Type: record.ColInt64},
		},
		PrimaryKey:  []string{"id"},
		ForeignKeys: []record.ForeignKey{{Column: "dept_id", RefTable: "departments", RefColumn: "id"}},
		Indexes:     []record.IndexDef{{Name: IndexName("employees", "dept_id"), Column: "dept_id"}},
	}))
}

func TestInsertScan_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.CreateTable("users", usersSchema()))

	n, err := db.Insert("users", []string{"id", "name", "born"}, [][]any{
		{"1", "alice", "1990-04-02"},
		{int64(2), "bob, jr", int64(1985)},
		{int64(3), "", nil},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	want := [][]any{
		{int64(1), "alice", int64(1990)},
		{int64(2), "bob, jr", int64(1985)},
		{int64(3), "", nil},
	}
	rows, err := db.Scan("users")
	require.NoError(t, err)
	assert.Equal(t, want, rows)

	// reopen from disk
	require.NoError(t, db.Close())
	db2 := openTestDB(t, dir)
	rows, err = db2.Scan("users")
	require.NoError(t, err)
	assert.Equal(t, want, rows)

	schema, err := db2.Schema("users")
	require.NoError(t, err)
	assert.Equal(t, usersSchema(), schema)
}

func TestInsert_ColumnSubsetAndErrors(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	require.NoError(t, db.CreateTable("users", usersSchema()))

	_, err := db.Insert("users", []string{"id"}, [][]any{{int64(1)}})
	require.NoError(t, err)
	rows, _ := db.Scan("users")
	assert.Equal(t, [][]any{{int64(1), nil, nil}}, rows)

	_, err = db.Insert("users", []string{"id", "nope"}, [][]any{{int64(2), "x"}})
	var se *sqlerr.SchemaError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = db.Insert("users", []string{"id", "name"}, [][]any{{"abc", "x"}})
	var te *sqlerr.TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "id", te.Column)

	_, err = db.Insert("ghost", nil, [][]any{{int64(1)}})
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = db.Insert("users", nil, [][]any{{int64(2), "x"}})
	require.ErrorAs(t, err, &se)

	n, _ := db.RowCount("users")
	assert.Equal(t, 1, n)
}

func TestInsert_PrimaryKey(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	require.NoError(t, db.CreateTable("users", usersSchema()))

	_, err := db.Insert("users", nil, [][]any{{int64(1), "a", nil}})
	require.NoError(t, err)

	_, err = db.Insert("users", nil, [][]any{{"1", "dup", nil}})
	var pk *sqlerr.PKViolation
	require.ErrorAs(t, err, &pk)

	_, err = db.Insert("users", []string{"name"}, [][]any{{"no id"}})
	require.ErrorAs(t, err, &pk)
	assert.Contains(t, pk.Reason, "NULL")

	// a batch with a duplicate inside it is rejected as a whole
	_, err = db.Insert("users", nil, [][]any{{int64(2), "b", nil}, {int64(2), "c", nil}})
	require.ErrorAs(t, err, &pk)

	n, _ := db.RowCount("users")
	assert.Equal(t, 1, n)

	// keys past 2^53 stay distinct
	_, err = db.Insert("users", nil, [][]any{
		{int64(9007199254740992), "x", nil},
		{int64(9007199254740993), "y", nil},
	})
	require.NoError(t, err)
	_, err = db.Insert("users", nil, [][]any{{"9007199254740993", "dup", nil}})
	require.ErrorAs(t, err, &pk)
}

func TestInsert_CompositePrimaryKey(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	require.NoError(t, db.CreateTable("enroll", record.Schema{
		Cols: []record.Column{
			{Name: "student", Type: record.ColInt64},
			{Name: "course", Type: record.ColText},
		},
		PrimaryKey: []string{"student", "course"},
	}))
	_, err := db.Insert("enroll", nil, [][]any{{int64(1), "math"}, {int64(1), "art"}, {int64(2), "math"}})
	require.NoError(t, err)

	_, err = db.Insert("enroll", nil, [][]any{{int64(1), "art"}})
	var pk *sqlerr.PKViolation
	require.ErrorAs(t, err, &pk)
	assert.Equal(t, []any{int64(1), "art"}, pk.Key)
}

func TestForeignKey_InsertAndDelete(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	setupCompany(t, db)

	_, err := db.Insert("employees", nil, [][]any{{int64(1), int64(1), int64(90000)}})
	var fk *sqlerr.FKViolation
	require.ErrorAs(t, err, &fk)
	assert.Equal(t, "dept_id", fk.Column)

	_, err = db.Insert("departments", nil, [][]any{{int64(1), "eng"}, {int64(2), "ops"}})
	require.NoError(t, err)
	_, err = db.Insert("employees", nil, [][]any{{int64(1), int64(1), int64(90000)}})
	require.NoError(t, err)

	// NULL foreign keys are not checked
	_, err = db.Insert("employees", nil, [][]any{{int64(2), nil, int64(1)}})
	require.NoError(t, err)

	// a referenced key one past 2^53 is not found through its float neighbour
	_, err = db.Insert("departments", nil, [][]any{{int64(9007199254740992), "big"}})
	require.NoError(t, err)
	_, err = db.Insert("employees", nil, [][]any{{int64(3), int64(9007199254740993), int64(1)}})
	require.ErrorAs(t, err, &fk)

	isDept1 := func(row []any) bool { return record.Equal(row[0], int64(1)) }

	_, err = db.Delete("departments", isDept1)
	require.ErrorAs(t, err, &fk)
	assert.Equal(t, "employees", fk.ReferencingTable)
	n, _ := db.RowCount("departments")
	assert.Equal(t, 3, n)

	_, err = db.Delete("employees", func(row []any) bool { return record.Equal(row[0], int64(1)) })
	require.NoError(t, err)

	n, err = db.Delete("departments", isDept1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = db.RowCount("departments")
	assert.Equal(t, 2, n)
}

func TestUpdate_Constraints(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	setupCompany(t, db)
	_, err := db.Insert("departments", nil, [][]any{{int64(1), "eng"}, {int64(2), "ops"}})
	require.NoError(t, err)
	_, err = db.Insert("employees", nil, [][]any{
		{int64(1), int64(1), int64(90000)},
		{int64(2), int64(1), int64(85000)},
		{int64(3), int64(2), int64(70000)},
	})
	require.NoError(t, err)

	// plain update
	n, err := db.Update("employees", func(row []any) bool { return record.Equal(row[1], int64(1)) },
		[]Assignment{{Column: "salary", Value: "100"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// no match is not an error
	n, err = db.Update("employees", func([]any) bool { return false }, []Assignment{{Column: "salary", Value: int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// duplicate PK after update
	_, err = db.Update("employees", func(row []any) bool { return record.Equal(row[0], int64(2)) },
		[]Assignment{{Column: "id", Value: int64(1)}})
	var pk *sqlerr.PKViolation
	require.ErrorAs(t, err, &pk)

	// FK target must exist
	_, err = db.Update("employees", nil, []Assignment{{Column: "dept_id", Value: int64(9)}})
	var fk *sqlerr.FKViolation
	require.ErrorAs(t, err, &fk)

	// referenced key cannot change while referenced
	_, err = db.Update("departments", func(row []any) bool { return record.Equal(row[0], int64(2)) },
		[]Assignment{{Column: "id", Value: int64(5)}})
	require.ErrorAs(t, err, &fk)
	assert.Equal(t, "employees", fk.ReferencingTable)

	// changing a non-key column of a referenced row is fine
	_, err = db.Update("departments", nil, []Assignment{{Column: "name", Value: "x"}})
	require.NoError(t, err)

	var te *sqlerr.TypeError
	_, err = db.Update("employees", nil, []Assignment{{Column: "salary", Value: "lots"}})
	require.ErrorAs(t, err, &te)

	var se *sqlerr.SchemaError
	_, err = db.Update("employees", nil, []Assignment{{Column: "bonus", Value: int64(1)}})
	require.ErrorAs(t, err, &se)

	rows, _ := db.Scan("employees")
	assert.Equal(t, [][]any{
		{int64(1), int64(1), int64(100)},
		{int64(2), int64(1), int64(100)},
		{int64(3), int64(2), int64(70000)},
	}, rows)
}

func TestCreateTable_Validation(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	require.NoError(t, db.CreateTable("users", usersSchema()))

	cases := []struct {
		name   string
		table  string
		schema record.Schema
		target error
	}{
		{"exists", "users", usersSchema(), ErrTableExists},
		{"bad name", "1x", usersSchema(), ErrBadIdent},
		{"dup column", "t", record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColInt64}, {Name: "a", Type: record.ColText}}}, ErrDuplicateColumn},
		{"bad type", "t", record.Schema{Cols: []record.Column{{Name: "a"}}}, ErrBadColumnType},
		{"pk column", "t", record.Schema{Cols: []record.Column{{Name: "a", Type: record.ColInt64}}, PrimaryKey: []string{"b"}}, ErrColumnNotFound},
		{"fk ref column", "t", record.Schema{
			Cols:        []record.Column{{Name: "a", Type: record.ColInt64}},
			ForeignKeys: []record.ForeignKey{{Column: "a", RefTable: "users", RefColumn: "zzz"}},
		}, ErrColumnNotFound},
		{"index column", "t", record.Schema{
			Cols:    []record.Column{{Name: "a", Type: record.ColInt64}},
			Indexes: []record.IndexDef{{Name: "ix", Column: "b"}},
		}, ErrIndexBadColumn},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := db.CreateTable(c.table, c.schema)
			var se *sqlerr.SchemaError
			require.ErrorAs(t, err, &se)
			assert.ErrorIs(t, err, c.target)
		})
	}

	err := db.CreateTable("t", record.Schema{
		Cols:        []record.Column{{Name: "a", Type: record.ColInt64}},
		ForeignKeys: []record.ForeignKey{{Column: "a", RefTable: "ghost", RefColumn: "id"}},
	})
	var se *sqlerr.SchemaError
	require.ErrorAs(t, err, &se)

	tables, err := db.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)
}

func TestDropTable_RemovesFilesAndReferences(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	setupCompany(t, db)

	require.NoError(t, db.DropTable("departments"))
	_, err := os.Stat(filepath.Join(dir, "tables", "departments.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "tables", "departments.meta.json"))
	assert.True(t, os.IsNotExist(err))

	schema, err := db.Schema("employees")
	require.NoError(t, err)
	assert.Empty(t, schema.ForeignKeys)

	// the FK is gone, so any dept_id is accepted now
	_, err = db.Insert("employees", nil, [][]any{{int64(1), int64(42), int64(1)}})
	require.NoError(t, err)

	assert.ErrorIs(t, db.DropTable("departments"), ErrTableNotFound)

	require.NoError(t, db.Close())
	db2 := openTestDB(t, dir)
	tables, err := db2.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"employees"}, tables)
	schema, _ = db2.Schema("employees")
	assert.Empty(t, schema.ForeignKeys)
}

func TestCommitFailure_KeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.CreateTable("users", usersSchema()))
	_, err := db.Insert("users", nil, [][]any{{int64(1), "a", nil}})
	require.NoError(t, err)

	// a non-empty directory in place of the data file makes the rename fail
	data := filepath.Join(dir, "tables", "users.csv")
	require.NoError(t, os.Remove(data))
	require.NoError(t, os.MkdirAll(filepath.Join(data, "blocker"), 0o755))

	_, err = db.Insert("users", nil, [][]any{{int64(2), "b", nil}})
	var ste *sqlerr.StorageError
	require.ErrorAs(t, err, &ste)

	rows, err := db.Scan("users")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLoad_FallbackEncodingAndNullFields(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.CreateTable("users", usersSchema()))
	require.NoError(t, db.Close())

	// hand-written latin-1 file: "José", an empty year and a \N name
	content := []byte("id,name,born\n1,Jos\xe9,\n2,\\N,1999\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tables", "users.csv"), content, 0o644))

	db2 := openTestDB(t, dir)
	rows, err := db2.Scan("users")
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(1), "José", nil},
		{int64(2), nil, int64(1999)},
	}, rows)
}

func TestReopen_TextLikeNullMarker(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.CreateTable("users", usersSchema()))
	_, err := db.Insert("users", nil, [][]any{
		{int64(1), `\N`, nil},
		{int64(2), `\\N`, nil},
		{int64(3), nil, nil},
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rows, err := openTestDB(t, dir).Scan("users")
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(1), `\N`, nil},
		{int64(2), `\\N`, nil},
		{int64(3), nil, nil},
	}, rows)
}

func TestLoad_HeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	require.NoError(t, db.CreateTable("users", usersSchema()))
	require.NoError(t, db.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tables", "users.csv"), []byte("id,nick,born\n"), 0o644))
	_, err := Open(dir, Options{})
	var ste *sqlerr.StorageError
	require.ErrorAs(t, err, &ste)
}

func TestClosed(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	require.NoError(t, db.Close())

	assert.ErrorIs(t, db.Close(), ErrDatabaseClosed)
	_, err := db.Scan("users")
	assert.True(t, errors.Is(err, ErrDatabaseClosed))
	assert.ErrorIs(t, db.CreateTable("t", usersSchema()), ErrDatabaseClosed)
	_, err = db.ListTables()
	assert.ErrorIs(t, err, ErrDatabaseClosed)
	assert.False(t, db.HasIndex("users", "id"))
}
