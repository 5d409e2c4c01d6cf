package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"
)

// CopyTree copies the directory tree at src into dst, which must not exist
// yet. Symlinks are copied as links. Top-level entries whose name is in
// exclude are skipped, and so is every path under skip, which keeps an
// application root living inside src out of its own copy.
func CopyTree(src, dst string, exclude map[string]struct{}, skip ...string) error {
	src = filepath.Clean(src)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source tree: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("source %s: %w", src, fs.ErrInvalid)
	}

	skip = append(skip, dst)

	err = cp.Copy(src, dst, cp.Options{
		OnSymlink: func(string) cp.SymlinkAction {
			return cp.Shallow
		},
		Skip: func(_ os.FileInfo, path, _ string) (bool, error) {
			for _, dir := range skip {
				if Within(dir, path) {
					return true, nil
				}
			}

			rel, err := filepath.Rel(src, path)
			if err != nil {
				return false, err
			}

			_, excluded := exclude[rel]

			return excluded, nil
		},
		// Owners keep write access so failed builds can be removed.
		PermissionControl: cp.AddPermission(0o200),
		Sync:              true,
	})
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	return nil
}

// Within reports whether path is dir or lies below it. Both are cleaned
// lexically; symlinks are not resolved.
func Within(dir, path string) bool {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)

	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
