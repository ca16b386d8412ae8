// Package sqlerr defines the error taxonomy returned across the engine boundary.
// Every failure a caller can observe is one of these types; classify with errors.As.
package sqlerr

import (
	"errors"
	"fmt"
)

// ParseError reports command text that does not match the supported grammar.
type ParseError struct {
	Reason string
	SQL    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s: %q", e.Reason, e.SQL)
}

// SchemaError reports unknown tables/columns and duplicate tables/indexes.
// Err, when set, is the sentinel behind Reason.
type SchemaError struct {
	Table  string
	Column string
	Reason string
	Err    error
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	switch {
	case e.Table != "" && e.Column != "":
		return fmt.Sprintf("schema error: %s.%s: %s", e.Table, e.Column, reason)
	case e.Table != "":
		return fmt.Sprintf("schema error: %s: %s", e.Table, reason)
	default:
		return "schema error: " + reason
	}
}

// TypeError reports a value that cannot be coerced to its column's declared type.
type TypeError struct {
	Table  string
	Column string
	Want   string
	Value  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: %s.%s expects %s, got %v", e.Table, e.Column, e.Want, e.Value)
}

// PKViolation reports a duplicate (or NULL) primary-key value.
type PKViolation struct {
	Table   string
	Columns []string
	Key     []any
	Reason  string
}

func (e *PKViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("primary key violation on %s%v: %s", e.Table, e.Columns, e.Reason)
	}
	return fmt.Sprintf("primary key violation on %s%v: duplicate key %v", e.Table, e.Columns, e.Key)
}

// FKViolation reports an insert/update/delete blocked by a referential rule.
// Table/Column name the foreign-key side; ReferencingTable is set when a
// delete or update is blocked by rows of another table.
type FKViolation struct {
	Table            string
	Column           string
	RefTable         string
	RefColumn        string
	ReferencingTable string
	Value            any
}

func (e *FKViolation) Error() string {
	if e.ReferencingTable != "" {
		return fmt.Sprintf("foreign key violation: %s.%s value %v is still referenced by table %s",
			e.RefTable, e.RefColumn, e.Value, e.ReferencingTable)
	}
	return fmt.Sprintf("foreign key violation: %s.%s value %v has no match in %s.%s",
		e.Table, e.Column, e.Value, e.RefTable, e.RefColumn)
}

// ExecutionError reports an unsupported query shape or a malformed expression tree.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string { return "execution error: " + e.Reason }

// EvalError aborts the evaluation of a single row (unknown column, malformed literal).
type EvalError struct {
	Reason string
}

func (e *EvalError) Error() string { return "eval error: " + e.Reason }

// StorageError reports a failed durable write or read of a backing file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Class returns a short label for err, used by metrics and the shell.
func Class(err error) string {
	var (
		pe  *ParseError
		se  *SchemaError
		te  *TypeError
		pk  *PKViolation
		fk  *FKViolation
		ee  *ExecutionError
		ev  *EvalError
		ste *StorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &se):
		return "schema"
	case errors.As(err, &te):
		return "type"
	case errors.As(err, &pk):
		return "pk_violation"
	case errors.As(err, &fk):
		return "fk_violation"
	case errors.As(err, &ee):
		return "execution"
	case errors.As(err, &ev):
		return "eval"
	case errors.As(err, &ste):
		return "storage"
	default:
		return "internal"
	}
}
