package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

const (
	tempFilePrefix string = ".tmp_"
)

// MakeTempFilePath returns a unique temp file path in the same directory as the given path
func MakeTempFilePath(path string) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s%s", tempFilePrefix, xid.New().String()))
}

// WriteFileAtomic writes data to a temp file next to path and renames it over path,
// so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := MakeTempFilePath(path)

	err := os.WriteFile(tempPath, data, perm)
	if err != nil {
		_ = os.Remove(tempPath)
		return xerrors.Errorf("failed to write temp file %q: %w", tempPath, err)
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		_ = os.Remove(tempPath)
		return xerrors.Errorf("failed to rename temp file %q to %q: %w", tempPath, path, err)
	}

	return nil
}
