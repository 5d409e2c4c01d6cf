//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/oshokin/translator-release/internal/domain/release"
)

// Lock is a marker file created with O_EXCL. A crashed invocation leaves it
// behind and it has to be removed by hand.
type Lock struct {
	path string
}

// Acquire creates the marker file of root. An existing marker is
// release.ErrAlreadyInProgress.
func Acquire(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	path := filepath.Clean(Path(root))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s exists", release.ErrAlreadyInProgress, path)
		}

		return nil, fmt.Errorf("create lock file: %w", err)
	}

	_, _ = file.WriteString(strconv.Itoa(os.Getpid()))

	return &Lock{path: path}, file.Close()
}

// Release removes the marker file. It is safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}

	err := os.Remove(l.path)
	l.path = ""

	return err
}
