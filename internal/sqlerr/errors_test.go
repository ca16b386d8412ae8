package sqlerr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClass(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ParseError{Reason: "x", SQL: "SELEC"}, "parse"},
		{&SchemaError{Table: "t", Reason: "unknown table"}, "schema"},
		{&TypeError{Table: "t", Column: "id", Want: "INT", Value: "x"}, "type"},
		{&PKViolation{Table: "t", Columns: []string{"id"}}, "pk_violation"},
		{&FKViolation{Table: "t", Column: "c"}, "fk_violation"},
		{&ExecutionError{Reason: "bad"}, "execution"},
		{&EvalError{Reason: "bad"}, "eval"},
		{&StorageError{Op: "write", Path: "p", Err: os.ErrPermission}, "storage"},
		{fmt.Errorf("wrapped: %w", &PKViolation{Table: "t"}), "pk_violation"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Class(c.err), "err=%v", c.err)
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	err := &StorageError{Op: "rename", Path: "/x", Err: os.ErrNotExist}
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, err.Error(), "rename /x")
}

func TestFKViolation_Messages(t *testing.T) {
	ins := &FKViolation{Table: "employees", Column: "dept_id", RefTable: "departments", RefColumn: "id", Value: int64(9)}
	require.Contains(t, ins.Error(), "has no match in departments.id")

	del := &FKViolation{RefTable: "departments", RefColumn: "id", ReferencingTable: "employees", Value: int64(1)}
	require.Contains(t, del.Error(), "still referenced by table employees")
}

func TestSchemaError_Sentinel(t *testing.T) {
	sentinel := errors.New("index already exists")
	err := fmt.Errorf("create index: %w", &SchemaError{Table: "users", Err: sentinel})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, "schema", Class(err))
	require.Contains(t, err.Error(), "schema error: users: index already exists")
}
