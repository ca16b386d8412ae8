package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

type FileSet interface {
	DataPath() string
	MetaPath() string
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet represents a local directory + base file name.
// A table lives in Base.csv (rows) and Base.meta.json (schema).
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) DataPath() string { return filepath.Join(lfs.Dir, lfs.Base+DataExt) }
func (lfs LocalFileSet) MetaPath() string { return filepath.Join(lfs.Dir, lfs.Base+MetaExt) }

// StorageManager reads and writes table and schema files. It holds no table
// state; the engine owns rows and schemas in memory.
type StorageManager struct {
	fallback     encoding.Encoding
	fallbackName string
}

// NewStorageManager returns a manager whose readers fall back to the named
// single-byte encoding ("iso-8859-1" or "windows-1252") for non UTF-8 files.
func NewStorageManager(fallbackEncoding string) (*StorageManager, error) {
	enc, name, err := lookupEncoding(fallbackEncoding)
	if err != nil {
		return nil, err
	}
	return &StorageManager{fallback: enc, fallbackName: name}, nil
}

func lookupEncoding(name string) (encoding.Encoding, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1, "iso-8859-1", nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, "windows-1252", nil
	default:
		return nil, "", fmt.Errorf("storage: unsupported fallback encoding %q", name)
	}
}

// decode strips a UTF-8 BOM, or converts from the fallback encoding when the
// bytes are not valid UTF-8.
func (sm *StorageManager) decode(path string, b []byte) ([]byte, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if utf8.Valid(b) {
		return b, nil
	}
	slog.Warn("storage: file is not valid UTF-8, using fallback decoding",
		"path", path, "encoding", sm.fallbackName)
	out, err := sm.fallback.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", sm.fallbackName, err)
	}
	return out, nil
}

// ReadTable returns the header and records of a table file.
func (sm *StorageManager) ReadTable(fs FileSet) ([]string, [][]string, error) {
	path := fs.DataPath()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &sqlerr.StorageError{Op: "read", Path: path, Err: err}
	}
	data, err := sm.decode(path, raw)
	if err != nil {
		return nil, nil, &sqlerr.StorageError{Op: "decode", Path: path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, &sqlerr.StorageError{Op: "parse", Path: path, Err: err}
	}
	return all[0], all[1:], nil
}

// EncodeTable renders header + records in the table file format.
func EncodeTable(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadMeta unmarshals the schema file of fs into v.
func (sm *StorageManager) ReadMeta(fs FileSet, v any) error {
	path := fs.MetaPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return &sqlerr.StorageError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &sqlerr.StorageError{Op: "parse", Path: path, Err: err}
	}
	return nil
}

func EncodeMeta(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// ListBases returns the base names of every schema file in dir, sorted.
func (sm *StorageManager) ListBases(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &sqlerr.StorageError{Op: "list", Path: dir, Err: err}
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), MetaExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), MetaExt))
	}
	sort.Strings(out)
	return out, nil
}

// Begin starts a batch of file replacements committed as a unit.
func (sm *StorageManager) Begin() *Batch {
	return &Batch{}
}

// FormatField encodes one value for the table file.
func FormatField(v any) string {
	if v == nil {
		return NullField
	}
	s := record.Text(v)
	if isEscapedNull(s) {
		return `\` + s
	}
	return s
}

func IsNullField(s string) bool { return s == NullField }

// UnescapeField reverses the escaping FormatField applies to text that
// would otherwise read back as NULL.
func UnescapeField(s string) string {
	if len(s) > len(NullField) && isEscapedNull(s) {
		return s[1:]
	}
	return s
}

// isEscapedNull reports whether s is one or more backslashes followed by N.
func isEscapedNull(s string) bool {
	n := len(s)
	if n < 2 || s[n-1] != 'N' {
		return false
	}
	for i := 0; i < n-1; i++ {
		if s[i] != '\\' {
			return false
		}
	}
	return true
}
