package heap

// TID (Tuple ID) is the row identity inside one table. It is assigned on
// insert, never reused, and survives updates of the row's values.
type TID uint64
