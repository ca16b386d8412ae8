package engine

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/tuannm99/flatsql/internal/btree"
	"github.com/tuannm99/flatsql/internal/heap"
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

var (
	ErrIndexNotFound  = errors.New("index not found")
	ErrIndexExists    = errors.New("index already exists")
	ErrIndexBadColumn = errors.New("index key column not found")
	ErrIndexBadName   = errors.New("invalid index name")
)

// IndexName is the name given to an index declared inline with CREATE TABLE.
func IndexName(table, column string) string {
	return "idx_" + table + "_" + column
}

// CreateIndex builds an index over the current rows with one scan and
// registers it in the table's schema file.
func (db *Database) CreateIndex(table, name, column string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return err
	}
	ts, err := db.table(table)
	if err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return &sqlerr.SchemaError{Table: table, Reason: "invalid index name " + name, Err: ErrIndexBadName}
	}
	if _, ok := ts.indexes[name]; ok {
		return &sqlerr.SchemaError{Table: table, Reason: "index " + name + " already exists", Err: ErrIndexExists}
	}
	pos := ts.schema().ColPos(column)
	if pos < 0 {
		return &sqlerr.SchemaError{Table: table, Column: column, Err: ErrIndexBadColumn}
	}

	next := ts.clone()
	def := record.IndexDef{Name: name, Column: column}
	next.meta.Schema.Indexes = append(next.meta.Schema.Indexes, def)
	next.rows.Schema = next.meta.Schema
	next.indexes[name] = &indexState{def: def, pos: pos, tree: btree.Build(next.rows, pos)}

	b := db.SM.Begin()
	if err := db.stageMeta(b, next); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}
	db.tables[table] = next
	slog.Info("engine: index created", "table", table, "index", name, "column", column,
		"entries", next.indexes[name].tree.Len())
	return nil
}

// DropIndex unregisters an index.
func (db *Database) DropIndex(table, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return err
	}
	ts, err := db.table(table)
	if err != nil {
		return err
	}
	pos, def := ts.schema().FindIndex(name)
	if def == nil {
		return &sqlerr.SchemaError{Table: table, Reason: "index " + name + " not found", Err: ErrIndexNotFound}
	}

	next := ts.clone()
	idx := next.meta.Schema.Indexes
	next.meta.Schema.Indexes = append(idx[:pos:pos], idx[pos+1:]...)
	next.rows.Schema = next.meta.Schema
	delete(next.indexes, name)

	b := db.SM.Begin()
	if err := db.stageMeta(b, next); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}
	db.tables[table] = next
	slog.Info("engine: index dropped", "table", table, "index", name)
	return nil
}

func (ts *tableState) indexOn(column string) *indexState {
	var best *indexState
	for _, ix := range ts.indexes {
		if ix.def.Column != column {
			continue
		}
		// deterministic choice when a column has several indexes
		if best == nil || ix.def.Name < best.def.Name {
			best = ix
		}
	}
	return best
}

// HasIndex reports whether column of table has at least one index.
func (db *Database) HasIndex(table, column string) bool {
	_, ok := db.IndexFor(table, column)
	return ok
}

// IndexFor returns the name of an index on column of table.
func (db *Database) IndexFor(table, column string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.ensureOpen() != nil {
		return "", false
	}
	ts, ok := db.tables[table]
	if !ok {
		return "", false
	}
	ix := ts.indexOn(column)
	if ix == nil {
		return "", false
	}
	return ix.def.Name, true
}

// Lookup returns the rows of table whose column equals value, using an
// index on that column. NULL matches nothing.
func (db *Database) Lookup(table, column string, value any) ([]heap.TID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	ts, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return ts.lookup(column, value)
}

func (ts *tableState) lookup(column string, value any) ([]heap.TID, error) {
	ix := ts.indexOn(column)
	if ix == nil {
		return nil, &sqlerr.SchemaError{Table: ts.meta.Name, Column: column, Err: ErrIndexNotFound}
	}
	k, ok := record.KeyOf(value)
	if !ok {
		return nil, nil
	}
	return ix.tree.SearchEqual(k), nil
}

// Fetch returns copies of the rows behind tids in storage order, so an
// index-driven read yields rows in the same order as a scan.
func (db *Database) Fetch(table string, tids []heap.TID) ([][]any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	ts, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return ts.fetch(tids)
}

func (ts *tableState) fetch(tids []heap.TID) ([][]any, error) {
	sorted := append([]heap.TID(nil), tids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make([][]any, 0, len(sorted))
	for _, tid := range sorted {
		row, err := ts.rows.Get(tid)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// LookupRows is Lookup followed by Fetch under one read lock.
func (db *Database) LookupRows(table, column string, value any) ([][]any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	ts, err := db.table(table)
	if err != nil {
		return nil, err
	}
	tids, err := ts.lookup(column, value)
	if err != nil {
		return nil, err
	}
	return ts.fetch(tids)
}
