package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tuannm99/flatsql/internal/btree"
	"github.com/tuannm99/flatsql/internal/catalog"
	"github.com/tuannm99/flatsql/internal/heap"
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// validateIdent accepts letters, digits and '_', not starting with a digit.
func validateIdent(s string) error {
	if s == "" {
		return ErrBadIdent
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return ErrBadIdent
		}
	}
	return nil
}

// CreateTable registers and persists an empty table.
func (db *Database) CreateTable(name string, schema record.Schema) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return err
	}
	if err := validateIdent(name); err != nil {
		return &sqlerr.SchemaError{Table: name, Err: err}
	}
	if _, ok := db.tables[name]; ok {
		return &sqlerr.SchemaError{Table: name, Err: ErrTableExists}
	}
	schema = schema.Clone()
	if err := db.validateSchema(name, schema); err != nil {
		return err
	}

	now := time.Now().UTC()
	ts := &tableState{
		meta: &catalog.TableMeta{
			Name:      name,
			FileBase:  name,
			Schema:    schema,
			CreatedAt: now,
			UpdatedAt: now,
		},
		rows:    heap.NewTable(name, schema),
		indexes: make(map[string]*indexState),
	}
	for _, def := range schema.Indexes {
		ts.indexes[def.Name] = &indexState{def: def, pos: schema.ColPos(def.Column), tree: btree.NewTree()}
	}
	if err := db.commitTable(ts); err != nil {
		return err
	}
	slog.Info("engine: table created", "table", name, "columns", schema.NumCols())
	return nil
}

func (db *Database) validateSchema(table string, s record.Schema) error {
	if s.NumCols() == 0 {
		return &sqlerr.SchemaError{Table: table, Reason: "table needs at least one column"}
	}
	seen := make(map[string]bool, s.NumCols())
	for _, c := range s.Cols {
		if err := validateIdent(c.Name); err != nil {
			return &sqlerr.SchemaError{Table: table, Column: c.Name, Err: err}
		}
		if seen[c.Name] {
			return &sqlerr.SchemaError{Table: table, Column: c.Name, Err: ErrDuplicateColumn}
		}
		seen[c.Name] = true
		switch c.Type {
		case record.ColInt64, record.ColText, record.ColYear:
		default:
			return &sqlerr.SchemaError{Table: table, Column: c.Name, Err: ErrBadColumnType}
		}
	}

	pk := make(map[string]bool, len(s.PrimaryKey))
	for _, col := range s.PrimaryKey {
		if !seen[col] {
			return &sqlerr.SchemaError{Table: table, Column: col, Err: ErrColumnNotFound}
		}
		if pk[col] {
			return &sqlerr.SchemaError{Table: table, Column: col, Reason: "listed twice in primary key"}
		}
		pk[col] = true
	}

	for _, fk := range s.ForeignKeys {
		if !seen[fk.Column] {
			return &sqlerr.SchemaError{Table: table, Column: fk.Column, Err: ErrColumnNotFound}
		}
		var ref record.Schema
		if fk.RefTable == table {
			ref = s
		} else {
			rts, ok := db.tables[fk.RefTable]
			if !ok {
				return &sqlerr.SchemaError{Table: fk.RefTable,
					Reason: fmt.Sprintf("foreign key %s references a missing table", fk.Column)}
			}
			ref = rts.schema()
		}
		if !ref.HasColumn(fk.RefColumn) {
			return &sqlerr.SchemaError{Table: fk.RefTable, Column: fk.RefColumn, Err: ErrColumnNotFound}
		}
	}

	names := make(map[string]bool, len(s.Indexes))
	for _, ix := range s.Indexes {
		if err := validateIdent(ix.Name); err != nil {
			return &sqlerr.SchemaError{Table: table, Reason: "invalid index name " + ix.Name, Err: ErrIndexBadName}
		}
		if names[ix.Name] {
			return &sqlerr.SchemaError{Table: table, Err: ErrIndexExists, Reason: "index " + ix.Name + " already exists"}
		}
		names[ix.Name] = true
		if !seen[ix.Column] {
			return &sqlerr.SchemaError{Table: table, Column: ix.Column, Err: ErrIndexBadColumn}
		}
	}
	return nil
}

// DropTable removes a table, its indexes, and every foreign key of other
// tables that references it. All affected files change in one batch.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.ensureOpen(); err != nil {
		return err
	}
	ts, err := db.table(name)
	if err != nil {
		return err
	}

	b := db.SM.Begin()
	changed := make(map[string]*tableState)
	for other, ots := range db.tables {
		if other == name {
			continue
		}
		var kept []record.ForeignKey
		for _, fk := range ots.schema().ForeignKeys {
			if fk.RefTable != name {
				kept = append(kept, fk)
			}
		}
		if len(kept) == len(ots.schema().ForeignKeys) {
			continue
		}
		next := ots.clone()
		next.meta.Schema.ForeignKeys = kept
		next.rows.Schema = next.meta.Schema
		if err := db.stageMeta(b, next); err != nil {
			return err
		}
		changed[other] = next
	}

	fs := db.tableFileSet(ts.meta.FileBase)
	b.Remove(fs.DataPath())
	b.Remove(fs.MetaPath())
	if err := b.Commit(); err != nil {
		return err
	}

	delete(db.tables, name)
	for other, next := range changed {
		db.tables[other] = next
		slog.Info("engine: dropped foreign keys referencing table", "table", other, "referenced", name)
	}
	slog.Info("engine: table dropped", "table", name, "indexes", len(ts.indexes))
	return nil
}
