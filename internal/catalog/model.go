package catalog

import (
	"time"

	"github.com/tuannm99/flatsql/internal/record"
)

// TableMeta is the persisted schema record of one table (<table>.meta.json).
type TableMeta struct {
	Name      string        `json:"name"`
	FileBase  string        `json:"file_base"`
	Schema    record.Schema `json:"schema"`
	RowCount  int           `json:"row_count"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone copies meta without sharing schema slices.
func (m *TableMeta) Clone() *TableMeta {
	cp := *m
	cp.Schema = m.Schema.Clone()
	return &cp
}
