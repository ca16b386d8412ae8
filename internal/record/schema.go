package record

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ColumnType uint8

const (
	ColInt64 ColumnType = iota + 1
	ColText             // UTF-8
	ColYear             // year/date-like, stored as int64
)

func (t ColumnType) String() string {
	switch t {
	case ColInt64:
		return "INT"
	case ColText:
		return "VARCHAR"
	case ColYear:
		return "YEAR"
	default:
		return fmt.Sprintf("ColumnType(%d)", uint8(t))
	}
}

// ParseColumnType maps a declared SQL type onto the closed type set.
func ParseColumnType(s string) (ColumnType, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(up, '('); i > 0 && strings.HasSuffix(up, ")") {
		up = up[:i]
	}
	switch up {
	case "INT", "INTEGER", "BIGINT":
		return ColInt64, nil
	case "VARCHAR", "TEXT", "CHAR", "STRING":
		return ColText, nil
	case "YEAR", "DATE":
		return ColYear, nil
	default:
		return 0, fmt.Errorf("unsupported column type: %s", s)
	}
}

func (t ColumnType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ColumnType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ct, err := ParseColumnType(s)
	if err != nil {
		return err
	}
	*t = ct
	return nil
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// ForeignKey: Column must match an existing RefColumn value of RefTable.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"referenced_table"`
	RefColumn string `json:"referenced_column"`
}

type IndexDef struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

type Schema struct {
	Cols        []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes     []IndexDef   `json:"indexes,omitempty"`
}

func (s Schema) NumCols() int { return len(s.Cols) }

// ColPos returns the position of column name, or -1.
func (s Schema) ColPos(name string) int {
	for i := range s.Cols {
		if s.Cols[i].Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) HasColumn(name string) bool { return s.ColPos(name) >= 0 }

func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Name
	}
	return out
}

func (s Schema) IsPrimaryKey(col string) bool {
	for _, pk := range s.PrimaryKey {
		if pk == col {
			return true
		}
	}
	return false
}

func (s Schema) FindIndex(name string) (int, *IndexDef) {
	for i := range s.Indexes {
		if s.Indexes[i].Name == name {
			return i, &s.Indexes[i]
		}
	}
	return -1, nil
}

// Clone returns a deep copy so callers never share slices with the catalog.
func (s Schema) Clone() Schema {
	return Schema{
		Cols:        append([]Column(nil), s.Cols...),
		PrimaryKey:  append([]string(nil), s.PrimaryKey...),
		ForeignKeys: append([]ForeignKey(nil), s.ForeignKeys...),
		Indexes:     append([]IndexDef(nil), s.Indexes...),
	}
}
