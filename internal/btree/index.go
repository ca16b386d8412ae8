package btree

import (
	"github.com/tuannm99/flatsql/internal/heap"
	"github.com/tuannm99/flatsql/internal/record"
)

// Index is the minimal surface the engine needs from an index structure.
// Lookups are point lookups on the normalised key.
type Index interface {
	Insert(key record.Key, tid heap.TID)
	Delete(key record.Key, tid heap.TID) error
	SearchEqual(key record.Key) []heap.TID
	Len() int
}

var _ Index = (*Tree)(nil)
