package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data. The bytes go to a temporary file
// in the same directory which is synced and renamed over path, so readers
// see either the old or the new contents and never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	temporaryPath := file.Name()

	if _, err = file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)

		return fmt.Errorf("write temporary file: %w", err)
	}

	if err = file.Chmod(perm); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)

		return fmt.Errorf("chmod temporary file: %w", err)
	}

	if err = file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)

		return fmt.Errorf("sync temporary file: %w", err)
	}

	if err = file.Close(); err != nil {
		_ = os.Remove(temporaryPath)

		return fmt.Errorf("close temporary file: %w", err)
	}

	if err = os.Rename(temporaryPath, path); err != nil {
		_ = os.Remove(temporaryPath)

		return fmt.Errorf("rename into place: %w", err)
	}

	SyncDir(dir)

	return nil
}

// SyncDir flushes directory metadata so a preceding rename survives a crash.
// Errors are ignored: not every filesystem supports syncing directories.
func SyncDir(dir string) {
	parent, err := os.Open(filepath.Clean(dir))
	if err != nil {
		return
	}

	_ = parent.Sync()
	_ = parent.Close()
}
