package btree

import "errors"

var ErrTIDNotFound = errors.New("btree: tid not found under key")
