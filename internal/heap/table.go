package heap

import (
	"errors"
	"fmt"

	"github.com/tuannm99/flatsql/internal/record"
)

var (
	ErrRowNotFound = errors.New("heap: row not found")
	ErrColumnCount = errors.New("heap: value count does not match schema")
)

type slot struct {
	id     TID
	values []any
}

// Table is the in-memory row store of one table: rows in insertion order,
// each under a stable TID. Stored row slices are never modified in place,
// Update replaces them, so a Clone may share them with its source.
type Table struct {
	Name   string
	Schema record.Schema

	slots  []slot
	pos    map[TID]int
	nextID TID
}

func NewTable(name string, schema record.Schema) *Table {
	return &Table{
		Name:   name,
		Schema: schema,
		pos:    make(map[TID]int),
		nextID: 1,
	}
}

func (t *Table) Len() int { return len(t.slots) }

func (t *Table) checkArity(values []any) error {
	if len(values) != t.Schema.NumCols() {
		return fmt.Errorf("%w: table %s has %d columns, got %d",
			ErrColumnCount, t.Name, t.Schema.NumCols(), len(values))
	}
	return nil
}

// Insert appends a row and returns its TID.
func (t *Table) Insert(values []any) (TID, error) {
	if err := t.checkArity(values); err != nil {
		return 0, err
	}
	id := t.nextID
	t.nextID++
	t.pos[id] = len(t.slots)
	t.slots = append(t.slots, slot{id: id, values: append([]any(nil), values...)})
	return id, nil
}

// Get returns a copy of the row stored under id.
func (t *Table) Get(id TID) ([]any, error) {
	i, ok := t.pos[id]
	if !ok {
		return nil, ErrRowNotFound
	}
	return append([]any(nil), t.slots[i].values...), nil
}

// Update replaces the values of row id.
func (t *Table) Update(id TID, values []any) error {
	if err := t.checkArity(values); err != nil {
		return err
	}
	i, ok := t.pos[id]
	if !ok {
		return ErrRowNotFound
	}
	t.slots[i].values = append([]any(nil), values...)
	return nil
}

// Delete removes the given rows, keeping the order of the rest.
func (t *Table) Delete(ids ...TID) error {
	drop := make(map[TID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := t.pos[id]; !ok {
			return ErrRowNotFound
		}
		drop[id] = struct{}{}
	}
	kept := t.slots[:0:0]
	for _, s := range t.slots {
		if _, gone := drop[s.id]; gone {
			delete(t.pos, s.id)
			continue
		}
		t.pos[s.id] = len(kept)
		kept = append(kept, s)
	}
	t.slots = kept
	return nil
}

// Scan visits rows in insertion order. row is read-only and only valid
// during the callback.
func (t *Table) Scan(fn func(id TID, row []any) error) error {
	for _, s := range t.slots {
		if err := fn(s.id, s.values); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns a copy of every row in insertion order.
func (t *Table) Rows() [][]any {
	out := make([][]any, len(t.slots))
	for i, s := range t.slots {
		out[i] = append([]any(nil), s.values...)
	}
	return out
}

// Clone returns an independent table with the same rows and TIDs.
func (t *Table) Clone() *Table {
	cp := &Table{
		Name:   t.Name,
		Schema: t.Schema.Clone(),
		slots:  append([]slot(nil), t.slots...),
		pos:    make(map[TID]int, len(t.pos)),
		nextID: t.nextID,
	}
	for id, i := range t.pos {
		cp.pos[id] = i
	}
	return cp
}
