package storage

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tuannm99/flatsql/internal/alias/util"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

type batchOp struct {
	path   string
	data   []byte
	remove bool
	tmp    string
}

// Batch groups the file writes of one operation. Every new file is written
// to a temp file next to its target and synced; only when all temps are
// complete are they renamed into place, in the order they were added.
// Removals run after the renames.
type Batch struct {
	ops []batchOp
}

func (b *Batch) Put(path string, data []byte) {
	b.ops = append(b.ops, batchOp{path: path, data: data})
}

func (b *Batch) Remove(path string) {
	b.ops = append(b.ops, batchOp{path: path, remove: true})
}

func (b *Batch) Len() int { return len(b.ops) }

// Commit applies the batch. On failure before the rename phase, all temps
// are removed and the previous files are untouched.
func (b *Batch) Commit() error {
	if len(b.ops) == 0 {
		return ErrEmptyBatch
	}

	for i := range b.ops {
		op := &b.ops[i]
		if op.remove {
			continue
		}
		tmp, err := writeTemp(op.path, op.data)
		if err != nil {
			b.cleanup()
			return err
		}
		op.tmp = tmp
	}

	dirs := map[string]struct{}{}
	for i := range b.ops {
		op := &b.ops[i]
		if op.remove {
			continue
		}
		if err := os.Rename(op.tmp, op.path); err != nil {
			b.cleanup()
			return &sqlerr.StorageError{Op: "rename", Path: op.path, Err: err}
		}
		op.tmp = ""
		dirs[filepath.Dir(op.path)] = struct{}{}
	}

	for _, op := range b.ops {
		if !op.remove {
			continue
		}
		if err := os.Remove(op.path); err != nil && !os.IsNotExist(err) {
			return &sqlerr.StorageError{Op: "remove", Path: op.path, Err: err}
		}
		dirs[filepath.Dir(op.path)] = struct{}{}
	}

	for dir := range dirs {
		syncDir(dir)
	}
	return nil
}

func (b *Batch) cleanup() {
	for i := range b.ops {
		if b.ops[i].tmp != "" {
			util.RemoveQuiet(b.ops[i].tmp)
			b.ops[i].tmp = ""
		}
	}
}

func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, FileMode0755); err != nil {
		return "", &sqlerr.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", &sqlerr.StorageError{Op: "create", Path: path, Err: err}
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		util.CloseFileFunc(f)
		util.RemoveQuiet(name)
		return "", &sqlerr.StorageError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		util.CloseFileFunc(f)
		util.RemoveQuiet(name)
		return "", &sqlerr.StorageError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		util.RemoveQuiet(name)
		return "", &sqlerr.StorageError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(name, FileMode0644); err != nil {
		slog.Debug("storage: chmod temp file", "path", name, "err", err)
	}
	return name, nil
}

// syncDir makes the renames durable; not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer util.CloseFileFunc(d)
	if err := d.Sync(); err != nil {
		slog.Debug("storage: sync dir", "dir", dir, "err", err)
	}
}
