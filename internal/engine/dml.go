package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tuannm99/flatsql/internal/heap"
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// Predicate selects rows for Update and Delete. row is read-only.
// A nil Predicate matches every row.
type Predicate func(row []any) bool

// Assignment is one SET col = value of an update.
type Assignment struct {
	Column string
	Value  any
}

func (ts *tableState) insertRow(row []any) error {
	tid, err := ts.rows.Insert(row)
	if err != nil {
		return err
	}
	for _, ix := range ts.indexes {
		if k, ok := record.KeyOf(row[ix.pos]); ok {
			ix.tree.Insert(k, tid)
		}
	}
	return nil
}

func (ts *tableState) updateRow(tid heap.TID, old, row []any) error {
	if err := ts.rows.Update(tid, row); err != nil {
		return err
	}
	for _, ix := range ts.indexes {
		if k, ok := record.KeyOf(old[ix.pos]); ok {
			if err := ix.tree.Delete(k, tid); err != nil {
				return err
			}
		}
		if k, ok := record.KeyOf(row[ix.pos]); ok {
			ix.tree.Insert(k, tid)
		}
	}
	return nil
}

func (ts *tableState) deleteRows(tids []heap.TID, old [][]any) error {
	for i, tid := range tids {
		for _, ix := range ts.indexes {
			if k, ok := record.KeyOf(old[i][ix.pos]); ok {
				if err := ix.tree.Delete(k, tid); err != nil {
					return err
				}
			}
		}
	}
	return ts.rows.Delete(tids...)
}

func coerceValue(table string, col record.Column, v any) (any, error) {
	out, err := record.Coerce(col.Type, v)
	if err != nil {
		return nil, &sqlerr.TypeError{Table: table, Column: col.Name, Want: col.Type.String(), Value: v}
	}
	return out, nil
}

// Insert validates every row as a whole and then appends them. columns names
// the position of each value; nil means all columns in schema order. Columns
// that are not named are NULL.
func (db *Database) Insert(table string, columns []string, values [][]any) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return 0, err
	}
	ts, err := db.table(table)
	if err != nil {
		return 0, err
	}
	schema := ts.schema()

	positions, err := columnPositions(table, schema, columns)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(values))
	for _, vals := range values {
		if len(vals) != len(positions) {
			return 0, &sqlerr.SchemaError{Table: table,
				Reason: fmt.Sprintf("expected %d values, got %d", len(positions), len(vals))}
		}
		row := make([]any, schema.NumCols())
		for i, pos := range positions {
			v, err := coerceValue(table, schema.Cols[pos], vals[i])
			if err != nil {
				return 0, err
			}
			row[pos] = v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	next := ts.clone()
	for _, row := range rows {
		if err := next.insertRow(row); err != nil {
			return 0, err
		}
	}
	if err := checkPrimaryKey(next); err != nil {
		return 0, err
	}
	if err := db.checkOutgoing(next, rows, nil); err != nil {
		return 0, err
	}
	if err := db.commitTable(next); err != nil {
		return 0, err
	}
	slog.Debug("engine: rows inserted", "table", table, "rows", len(rows))
	return len(rows), nil
}

func columnPositions(table string, schema record.Schema, columns []string) ([]int, error) {
	if columns == nil {
		out := make([]int, schema.NumCols())
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	seen := make(map[int]bool, len(columns))
	out := make([]int, len(columns))
	for i, c := range columns {
		pos := schema.ColPos(c)
		if pos < 0 {
			return nil, &sqlerr.SchemaError{Table: table, Column: c, Err: ErrColumnNotFound}
		}
		if seen[pos] {
			return nil, &sqlerr.SchemaError{Table: table, Column: c, Err: ErrDuplicateColumn}
		}
		seen[pos] = true
		out[i] = pos
	}
	return out, nil
}

// Update applies assigns to every row matching pred and returns the number
// of matched rows. Constraints are checked against the whole resulting table.
func (db *Database) Update(table string, pred Predicate, assigns []Assignment) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return 0, err
	}
	ts, err := db.table(table)
	if err != nil {
		return 0, err
	}
	schema := ts.schema()
	if len(assigns) == 0 {
		return 0, &sqlerr.SchemaError{Table: table, Reason: "update without assignments"}
	}

	type set struct {
		pos int
		v   any
	}
	sets := make([]set, 0, len(assigns))
	changedCols := make(map[string]bool, len(assigns))
	for _, a := range assigns {
		pos := schema.ColPos(a.Column)
		if pos < 0 {
			return 0, &sqlerr.SchemaError{Table: table, Column: a.Column, Err: ErrColumnNotFound}
		}
		v, err := coerceValue(table, schema.Cols[pos], a.Value)
		if err != nil {
			return 0, err
		}
		sets = append(sets, set{pos: pos, v: v})
		changedCols[a.Column] = true
	}

	next := ts.clone()
	var updated [][]any
	err = ts.rows.Scan(func(tid heap.TID, old []any) error {
		if pred != nil && !pred(old) {
			return nil
		}
		row := append([]any(nil), old...)
		for _, s := range sets {
			row[s.pos] = s.v
		}
		updated = append(updated, row)
		return next.updateRow(tid, old, row)
	})
	if err != nil {
		return 0, err
	}
	if len(updated) == 0 {
		return 0, nil
	}

	if err := checkPrimaryKey(next); err != nil {
		return 0, err
	}
	if err := db.checkOutgoing(next, updated, changedCols); err != nil {
		return 0, err
	}
	if err := db.checkIncoming(ts, next); err != nil {
		return 0, err
	}
	if err := db.commitTable(next); err != nil {
		return 0, err
	}
	slog.Debug("engine: rows updated", "table", table, "rows", len(updated))
	return len(updated), nil
}

// Delete removes every row matching pred unless another row still
// references one of them through a foreign key.
func (db *Database) Delete(table string, pred Predicate) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return 0, err
	}
	ts, err := db.table(table)
	if err != nil {
		return 0, err
	}

	var (
		tids []heap.TID
		old  [][]any
	)
	_ = ts.rows.Scan(func(tid heap.TID, row []any) error {
		if pred == nil || pred(row) {
			tids = append(tids, tid)
			old = append(old, row)
		}
		return nil
	})
	if len(tids) == 0 {
		return 0, nil
	}

	next := ts.clone()
	if err := next.deleteRows(tids, old); err != nil {
		return 0, err
	}
	if err := db.checkIncoming(ts, next); err != nil {
		return 0, err
	}
	if err := db.commitTable(next); err != nil {
		return 0, err
	}
	slog.Debug("engine: rows deleted", "table", table, "rows", len(tids))
	return len(tids), nil
}

// pkKey returns the composite primary key of row; ok is false when any part is NULL.
func pkKey(schema record.Schema, row []any) (string, bool) {
	parts := make([]string, len(schema.PrimaryKey))
	for i, col := range schema.PrimaryKey {
		k, ok := record.KeyOf(row[schema.ColPos(col)])
		if !ok {
			return "", false
		}
		parts[i] = k.Encode()
	}
	return strings.Join(parts, "\x00"), true
}

func pkValues(schema record.Schema, row []any) []any {
	out := make([]any, len(schema.PrimaryKey))
	for i, col := range schema.PrimaryKey {
		out[i] = row[schema.ColPos(col)]
	}
	return out
}

// checkPrimaryKey verifies PK columns are non-null and unique over the table.
func checkPrimaryKey(ts *tableState) error {
	schema := ts.schema()
	if len(schema.PrimaryKey) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, ts.rows.Len())
	return ts.rows.Scan(func(_ heap.TID, row []any) error {
		key, ok := pkKey(schema, row)
		if !ok {
			return &sqlerr.PKViolation{Table: ts.meta.Name, Columns: schema.PrimaryKey,
				Key: pkValues(schema, row), Reason: "NULL in primary key"}
		}
		if _, dup := seen[key]; dup {
			return &sqlerr.PKViolation{Table: ts.meta.Name, Columns: schema.PrimaryKey, Key: pkValues(schema, row)}
		}
		seen[key] = struct{}{}
		return nil
	})
}

// columnKeys is the set of non-null keys of column pos.
func columnKeys(ts *tableState, pos int) map[record.Key]struct{} {
	out := make(map[record.Key]struct{}, ts.rows.Len())
	_ = ts.rows.Scan(func(_ heap.TID, row []any) error {
		if k, ok := record.KeyOf(row[pos]); ok {
			out[k] = struct{}{}
		}
		return nil
	})
	return out
}

// stateFor resolves a table by name, preferring self for its own name.
func (db *Database) stateFor(name string, self *tableState) (*tableState, error) {
	if name == self.meta.Name {
		return self, nil
	}
	return db.table(name)
}

// checkOutgoing verifies that the foreign-key values of rows exist in their
// referenced tables. When only is non-nil, FKs on other columns are skipped.
func (db *Database) checkOutgoing(next *tableState, rows [][]any, only map[string]bool) error {
	schema := next.schema()
	for _, fk := range schema.ForeignKeys {
		if only != nil && !only[fk.Column] {
			continue
		}
		ref, err := db.stateFor(fk.RefTable, next)
		if err != nil {
			return err
		}
		refPos := ref.schema().ColPos(fk.RefColumn)
		if refPos < 0 {
			return &sqlerr.SchemaError{Table: fk.RefTable, Column: fk.RefColumn, Err: ErrColumnNotFound}
		}
		pos := schema.ColPos(fk.Column)
		keys := columnKeys(ref, refPos)
		for _, row := range rows {
			k, ok := record.KeyOf(row[pos])
			if !ok {
				continue
			}
			if _, found := keys[k]; !found {
				return &sqlerr.FKViolation{
					Table: next.meta.Name, Column: fk.Column,
					RefTable: fk.RefTable, RefColumn: fk.RefColumn,
					Value: row[pos],
				}
			}
		}
	}
	return nil
}

// checkIncoming rejects the change from before to after when a value of a
// referenced column disappears while some row still points at it.
func (db *Database) checkIncoming(before, after *tableState) error {
	name := before.meta.Name
	for _, other := range db.tables {
		referencing := other
		if other.meta.Name == name {
			referencing = after
		}
		for _, fk := range referencing.schema().ForeignKeys {
			if fk.RefTable != name {
				continue
			}
			refPos := before.schema().ColPos(fk.RefColumn)
			if refPos < 0 {
				continue
			}
			gone := columnKeys(before, refPos)
			for k := range columnKeys(after, refPos) {
				delete(gone, k)
			}
			if len(gone) == 0 {
				continue
			}
			pos := referencing.schema().ColPos(fk.Column)
			err := referencing.rows.Scan(func(_ heap.TID, row []any) error {
				k, ok := record.KeyOf(row[pos])
				if !ok {
					return nil
				}
				if _, hit := gone[k]; hit {
					return &sqlerr.FKViolation{
						Table: referencing.meta.Name, Column: fk.Column,
						RefTable: name, RefColumn: fk.RefColumn,
						ReferencingTable: referencing.meta.Name,
						Value: row[pos],
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
