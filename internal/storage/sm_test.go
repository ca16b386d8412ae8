package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/flatsql/internal/sqlerr"
)

func newTestSM(t *testing.T) *StorageManager {
	t.Helper()
	sm, err := NewStorageManager("iso-8859-1")
	require.NoError(t, err)
	return sm
}

func TestStorageManager_TableRoundTrip(t *testing.T) {
	sm := newTestSM(t)
	fs := LocalFileSet{Dir: t.TempDir(), Base: "users"}

	header := []string{"id", "name", "note"}
	records := [][]string{
		{"1", "alice", "has, comma"},
		{"2", "bob", NullField},
		{"3", `say "hi"`, "line\nbreak"},
	}
	data, err := EncodeTable(header, records)
	require.NoError(t, err)

	b := sm.Begin()
	b.Put(fs.DataPath(), data)
	require.NoError(t, b.Commit())

	gotHeader, gotRecords, err := sm.ReadTable(fs)
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, records, gotRecords)
	assert.True(t, IsNullField(gotRecords[1][2]))
}

func TestStorageManager_ReadTable_BOMAndFallback(t *testing.T) {
	sm := newTestSM(t)
	dir := t.TempDir()

	bom := LocalFileSet{Dir: dir, Base: "bom"}
	require.NoError(t, os.WriteFile(bom.DataPath(), []byte("\xef\xbb\xbfid,name\n1,x\n"), FileMode0644))
	h, recs, err := sm.ReadTable(bom)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, h)
	assert.Equal(t, [][]string{{"1", "x"}}, recs)

	// "café" in ISO-8859-1
	latin := LocalFileSet{Dir: dir, Base: "latin"}
	require.NoError(t, os.WriteFile(latin.DataPath(), []byte("name\ncaf\xe9\n"), FileMode0644))
	_, recs, err = sm.ReadTable(latin)
	require.NoError(t, err)
	assert.Equal(t, "café", recs[0][0])
}

func TestStorageManager_ReadTable_Errors(t *testing.T) {
	sm := newTestSM(t)
	fs := LocalFileSet{Dir: t.TempDir(), Base: "missing"}

	_, _, err := sm.ReadTable(fs)
	require.Error(t, err)
	var se *sqlerr.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "read", se.Op)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	empty := LocalFileSet{Dir: t.TempDir(), Base: "empty"}
	require.NoError(t, os.WriteFile(empty.DataPath(), nil, FileMode0644))
	h, recs, err := sm.ReadTable(empty)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Nil(t, recs)
}

func TestStorageManager_MetaAndList(t *testing.T) {
	sm := newTestSM(t)
	dir := t.TempDir()

	type meta struct {
		Name string `json:"name"`
	}
	b := sm.Begin()
	for _, name := range []string{"zeta", "alpha"} {
		fs := LocalFileSet{Dir: dir, Base: name}
		data, err := EncodeMeta(meta{Name: name})
		require.NoError(t, err)
		b.Put(fs.MetaPath(), data)
	}
	require.NoError(t, b.Commit())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.csv"), []byte("x\n"), FileMode0644))

	bases, err := sm.ListBases(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, bases)

	var got meta
	require.NoError(t, sm.ReadMeta(LocalFileSet{Dir: dir, Base: "alpha"}, &got))
	assert.Equal(t, "alpha", got.Name)

	bases, err = sm.ListBases(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, bases)
}

func TestNewStorageManager_UnknownEncoding(t *testing.T) {
	_, err := NewStorageManager("ebcdic")
	require.Error(t, err)

	sm, err := NewStorageManager("windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", sm.fallbackName)
}

func TestBatch_ReplaceAndRemove(t *testing.T) {
	sm := newTestSM(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	gone := filepath.Join(dir, "gone.csv")
	require.NoError(t, os.WriteFile(a, []byte("old"), FileMode0644))
	require.NoError(t, os.WriteFile(gone, []byte("x"), FileMode0644))

	b := sm.Begin()
	b.Put(a, []byte("new"))
	b.Remove(gone)
	b.Remove(filepath.Join(dir, "never-existed.csv"))
	assert.Equal(t, 3, b.Len())
	require.NoError(t, b.Commit())

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	_, err = os.Stat(gone)
	assert.True(t, os.IsNotExist(err))

	// no temp files left behind
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}

func TestBatch_FailureLeavesOldFiles(t *testing.T) {
	sm := newTestSM(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(a, []byte("old"), FileMode0644))

	// a regular file where a directory is expected makes the second temp fail
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte{}, FileMode0644))

	b := sm.Begin()
	b.Put(a, []byte("new"))
	b.Put(filepath.Join(blocker, "b.csv"), []byte("x"))
	err := b.Commit()
	require.Error(t, err)
	assert.Equal(t, "storage", sqlerr.Class(err))

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, ents, 2)
}

func TestBatch_Empty(t *testing.T) {
	sm := newTestSM(t)
	assert.ErrorIs(t, sm.Begin().Commit(), ErrEmptyBatch)
}

func TestFormatField(t *testing.T) {
	assert.Equal(t, NullField, FormatField(nil))
	assert.Equal(t, "42", FormatField(int64(42)))
	assert.Equal(t, "", FormatField(""))
	assert.Equal(t, "x", FormatField("x"))

	// text that looks like the NULL marker is escaped and survives a read
	for _, s := range []string{`\N`, `\\N`, `\\\N`} {
		f := FormatField(s)
		assert.False(t, IsNullField(f), s)
		assert.Equal(t, s, UnescapeField(f), s)
	}
	assert.Equal(t, `N`, UnescapeField(FormatField("N")))
	assert.Equal(t, `a\N`, UnescapeField(FormatField(`a\N`)))
}
