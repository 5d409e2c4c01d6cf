package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// MaxSearchDepth bounds how deep FindRoot looks for the application tree.
const MaxSearchDepth = 4

// ErrLayoutNotFound is returned when no directory holds every required subdirectory.
var ErrLayoutNotFound = errors.New("application layout not found in archive")

// FindRoot searches dir breadth first, up to MaxSearchDepth levels, for the
// first directory containing every name in required as a subdirectory.
// Siblings are visited in lexical order so the result is stable.
func FindRoot(dir string, required []string) (string, error) {
	type candidate struct {
		path  string
		depth int
	}

	queue := []candidate{{path: dir}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if HasLayout(current.path, required) {
			return current.path, nil
		}

		if current.depth >= MaxSearchDepth {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", current.path, err)
		}

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})

		for _, entry := range entries {
			if entry.IsDir() {
				queue = append(queue, candidate{
					path:  filepath.Join(current.path, entry.Name()),
					depth: current.depth + 1,
				})
			}
		}
	}

	return "", fmt.Errorf("%w: need %v", ErrLayoutNotFound, required)
}

// Promote moves the application tree found under extracted to dst.
// dst must not exist yet.
func Promote(extracted, dst string, required []string) error {
	root, err := FindRoot(extracted, required)
	if err != nil {
		return err
	}

	if err = os.Rename(root, dst); err != nil {
		return fmt.Errorf("promote %s: %w", root, err)
	}

	return nil
}

// HasLayout reports whether dir holds every required subdirectory.
func HasLayout(dir string, required []string) bool {
	for _, name := range required {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.IsDir() {
			return false
		}
	}

	return true
}

// Unwrap returns dir/name when that directory is the only entry of dir, the
// shape of an archive zipped as a folder. Otherwise dir itself is returned.
func Unwrap(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}

	if len(entries) == 1 && entries[0].IsDir() && entries[0].Name() == name {
		return filepath.Join(dir, name), nil
	}

	return dir, nil
}
