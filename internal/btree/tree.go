package btree

import (
	gbtree "github.com/google/btree"

	"github.com/tuannm99/flatsql/internal/heap"
	"github.com/tuannm99/flatsql/internal/record"
)

const defaultDegree = 32

// entry holds every TID whose column value normalises to key, in insertion order.
type entry struct {
	key  record.Key
	tids []heap.TID
}

func entryLess(a, b entry) bool { return a.key.Less(b.key) }

// Tree is an in-memory B-tree from column value to row ids.
type Tree struct {
	bt   *gbtree.BTreeG[entry]
	size int
}

func NewTree() *Tree {
	return &Tree{bt: gbtree.NewG(defaultDegree, entryLess)}
}

// Insert adds tid under key. Duplicate keys are allowed.
func (t *Tree) Insert(key record.Key, tid heap.TID) {
	e, ok := t.bt.Get(entry{key: key})
	if !ok {
		e = entry{key: key}
	}
	e.tids = append(e.tids[:len(e.tids):len(e.tids)], tid)
	t.bt.ReplaceOrInsert(e)
	t.size++
}

// Delete removes tid from key, dropping the key once it has no rows.
func (t *Tree) Delete(key record.Key, tid heap.TID) error {
	e, ok := t.bt.Get(entry{key: key})
	if !ok {
		return ErrTIDNotFound
	}
	for i, x := range e.tids {
		if x != tid {
			continue
		}
		if len(e.tids) == 1 {
			t.bt.Delete(e)
		} else {
			rest := make([]heap.TID, 0, len(e.tids)-1)
			rest = append(rest, e.tids[:i]...)
			rest = append(rest, e.tids[i+1:]...)
			t.bt.ReplaceOrInsert(entry{key: key, tids: rest})
		}
		t.size--
		return nil
	}
	return ErrTIDNotFound
}

// SearchEqual returns the rows stored under key, or nil.
func (t *Tree) SearchEqual(key record.Key) []heap.TID {
	e, ok := t.bt.Get(entry{key: key})
	if !ok {
		return nil
	}
	return append([]heap.TID(nil), e.tids...)
}

// Len is the number of (key, tid) pairs.
func (t *Tree) Len() int { return t.size }

// Keys returns the distinct keys in ascending order.
func (t *Tree) Keys() []record.Key {
	out := make([]record.Key, 0, t.bt.Len())
	t.bt.Ascend(func(e entry) bool {
		out = append(out, e.key)
		return true
	})
	return out
}

// Clone returns a copy that shares no mutable state with t.
func (t *Tree) Clone() *Tree {
	return &Tree{bt: t.bt.Clone(), size: t.size}
}

// Build indexes every row of tbl on column pos. NULL values are skipped.
func Build(tbl *heap.Table, pos int) *Tree {
	tr := NewTree()
	_ = tbl.Scan(func(id heap.TID, row []any) error {
		if k, ok := record.KeyOf(row[pos]); ok {
			tr.Insert(k, id)
		}
		return nil
	})
	return tr
}
