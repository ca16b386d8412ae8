package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tuannm99/flatsql/internal/btree"
	"github.com/tuannm99/flatsql/internal/catalog"
	"github.com/tuannm99/flatsql/internal/heap"
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sqlerr"
	"github.com/tuannm99/flatsql/internal/storage"
)

var ErrDatabaseClosed = errors.New("flatsql: database is closed")

var (
	ErrTableExists     = errors.New("table already exists")
	ErrTableNotFound   = errors.New("table does not exist")
	ErrColumnNotFound  = errors.New("unknown column")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrBadColumnType   = errors.New("unsupported column type")
	ErrBadIdent        = errors.New("invalid identifier")
)

// Options configure Open.
type Options struct {
	// FallbackEncoding decodes table files that are not valid UTF-8
	// ("iso-8859-1" or "windows-1252").
	FallbackEncoding string
}

// tableState is everything the engine owns for one table. Mutations build a
// new tableState from a clone and swap it in only after the files are written.
type tableState struct {
	meta    *catalog.TableMeta
	rows    *heap.Table
	indexes map[string]*indexState
}

type indexState struct {
	def  record.IndexDef
	pos  int
	tree *btree.Tree
}

func (ts *tableState) clone() *tableState {
	cp := &tableState{
		meta:    ts.meta.Clone(),
		rows:    ts.rows.Clone(),
		indexes: make(map[string]*indexState, len(ts.indexes)),
	}
	for name, ix := range ts.indexes {
		cp.indexes[name] = &indexState{def: ix.def, pos: ix.pos, tree: ix.tree.Clone()}
	}
	return cp
}

func (ts *tableState) schema() record.Schema { return ts.meta.Schema }

// Database is the Schema & Storage Manager and Index Manager of one data
// directory. It is opened once per process and handed to the executor.
type Database struct {
	DataDir string
	SM      *storage.StorageManager

	mu     sync.RWMutex
	tables map[string]*tableState
	closed bool
}

// Open loads every schema, every table file and builds every index once.
func Open(dataDir string, opts Options) (*Database, error) {
	sm, err := storage.NewStorageManager(opts.FallbackEncoding)
	if err != nil {
		return nil, err
	}
	db := &Database{
		DataDir: dataDir,
		SM:      sm,
		tables:  make(map[string]*tableState),
	}
	if err := os.MkdirAll(db.tableDir(), storage.FileMode0755); err != nil {
		return nil, &sqlerr.StorageError{Op: "mkdir", Path: db.tableDir(), Err: err}
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	slog.Info("engine: database opened", "dir", dataDir, "tables", len(db.tables))
	return db, nil
}

func (db *Database) tableDir() string {
	return filepath.Join(db.DataDir, "tables")
}

func (db *Database) tableFileSet(base string) storage.LocalFileSet {
	return storage.LocalFileSet{Dir: db.tableDir(), Base: base}
}

func (db *Database) ensureOpen() error {
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

func (db *Database) load() error {
	bases, err := db.SM.ListBases(db.tableDir())
	if err != nil {
		return err
	}
	for _, base := range bases {
		ts, err := db.loadTable(base)
		if err != nil {
			return err
		}
		db.tables[ts.meta.Name] = ts
	}
	return nil
}

func (db *Database) loadTable(base string) (*tableState, error) {
	fs := db.tableFileSet(base)

	var meta catalog.TableMeta
	if err := db.SM.ReadMeta(fs, &meta); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		meta.Name = base
	}
	meta.FileBase = base

	tbl := heap.NewTable(meta.Name, meta.Schema)
	header, records, err := db.SM.ReadTable(fs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("engine: table file missing, starting empty", "table", meta.Name, "path", fs.DataPath())
	case err != nil:
		return nil, err
	}
	if header != nil && !sameStrings(header, meta.Schema.ColumnNames()) {
		return nil, &sqlerr.StorageError{Op: "load", Path: fs.DataPath(), Err: storage.ErrHeaderMismatch}
	}
	for i, rec := range records {
		row, err := decodeRecord(meta.Schema, rec)
		if err != nil {
			return nil, &sqlerr.StorageError{
				Op: "load", Path: fs.DataPath(),
				Err: fmt.Errorf("record %d: %w", i+1, err),
			}
		}
		if _, err := tbl.Insert(row); err != nil {
			return nil, err
		}
	}
	meta.RowCount = tbl.Len()

	ts := &tableState{meta: &meta, rows: tbl, indexes: make(map[string]*indexState)}
	for _, def := range meta.Schema.Indexes {
		pos := meta.Schema.ColPos(def.Column)
		if pos < 0 {
			return nil, &sqlerr.SchemaError{Table: meta.Name, Column: def.Column, Err: ErrIndexBadColumn}
		}
		ts.indexes[def.Name] = &indexState{def: def, pos: pos, tree: btree.Build(tbl, pos)}
	}
	slog.Debug("engine: table loaded", "table", meta.Name, "rows", tbl.Len(), "indexes", len(ts.indexes))
	return ts, nil
}

func decodeRecord(schema record.Schema, rec []string) ([]any, error) {
	row := make([]any, schema.NumCols())
	for i, col := range schema.Cols {
		if storage.IsNullField(rec[i]) {
			continue
		}
		v, err := record.ParseStored(col.Type, storage.UnescapeField(rec[i]))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// stageTable adds the data file and then the schema file of ts to b.
func (db *Database) stageTable(b *storage.Batch, ts *tableState) error {
	records := make([][]string, 0, ts.rows.Len())
	_ = ts.rows.Scan(func(_ heap.TID, row []any) error {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = storage.FormatField(v)
		}
		records = append(records, rec)
		return nil
	})
	data, err := storage.EncodeTable(ts.schema().ColumnNames(), records)
	if err != nil {
		return err
	}
	fs := db.tableFileSet(ts.meta.FileBase)
	b.Put(fs.DataPath(), data)
	return db.stageMeta(b, ts)
}

func (db *Database) stageMeta(b *storage.Batch, ts *tableState) error {
	ts.meta.RowCount = ts.rows.Len()
	ts.meta.UpdatedAt = time.Now().UTC()
	data, err := storage.EncodeMeta(ts.meta)
	if err != nil {
		return err
	}
	b.Put(db.tableFileSet(ts.meta.FileBase).MetaPath(), data)
	return nil
}

// commitTable persists next and makes it the current state of its table.
func (db *Database) commitTable(next *tableState) error {
	b := db.SM.Begin()
	if err := db.stageTable(b, next); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}
	db.tables[next.meta.Name] = next
	return nil
}

func (db *Database) table(name string) (*tableState, error) {
	ts, ok := db.tables[name]
	if !ok {
		return nil, &sqlerr.SchemaError{Table: name, Err: ErrTableNotFound}
	}
	return ts, nil
}

// Close marks the handle closed. Every mutation is durable when it returns,
// so there is nothing left to flush.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	db.closed = true
	db.tables = nil
	slog.Info("engine: database closed", "dir", db.DataDir)
	return nil
}

// ListTables returns the table names, sorted.
func (db *Database) ListTables() ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(db.tables))
	for name := range db.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Schema returns a copy of the schema of table name.
func (db *Database) Schema(name string) (record.Schema, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return record.Schema{}, err
	}
	ts, err := db.table(name)
	if err != nil {
		return record.Schema{}, err
	}
	return ts.schema().Clone(), nil
}

// Scan returns a copy of every row of table name in storage order.
func (db *Database) Scan(name string) ([][]any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	ts, err := db.table(name)
	if err != nil {
		return nil, err
	}
	return ts.rows.Rows(), nil
}

func (db *Database) RowCount(name string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.ensureOpen(); err != nil {
		return 0, err
	}
	ts, err := db.table(name)
	if err != nil {
		return 0, err
	}
	return ts.rows.Len(), nil
}
