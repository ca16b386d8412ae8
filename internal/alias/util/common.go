package util

import (
	"log/slog"
	"os"
)

// CloseFileFunc closes f for use in defer; a close failure is only logged.
func CloseFileFunc(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Error("close file", "path", f.Name(), "err", err)
	}
}

// RemoveQuiet removes path, ignoring a missing file.
func RemoveQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove file", "path", path, "err", err)
	}
}
