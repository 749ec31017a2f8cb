// Package fsutil holds the whole-file replace and backup helpers shared by every writer.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// BackupSuffix is appended to a file's path for its single-generation backup.
const BackupSuffix = ".old"

// WriteAtomic replaces path with data through a synced temp file in the same
// directory. A new file gets mode; an existing one keeps its permissions.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	err := renameio.WriteFile(path, data, mode,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithStaticPermissions(mode),
	)
	if err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Backup copies path to path+BackupSuffix, keeping its mode. It returns the mode of the
// original, or fallback and false when path does not exist.
func Backup(path string, fallback os.FileMode) (os.FileMode, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback, false, err
	}
	mode := info.Mode().Perm()
	if err := WriteAtomic(path+BackupSuffix, data, mode); err != nil {
		return fallback, false, fmt.Errorf("back up %s: %w", path, err)
	}
	return mode, true, nil
}

// CopyFile copies src to dst atomically.
func CopyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return WriteAtomic(dst, data, mode)
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
