package storage

import (
	"errors"
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755

	DataExt = ".csv"
	MetaExt = ".meta.json"

	// NullField encodes NULL in table files.
	NullField = `\N`
)

var (
	ErrHeaderMismatch = errors.New("storage: table file header does not match schema")
	ErrEmptyBatch     = errors.New("storage: empty batch")
)
