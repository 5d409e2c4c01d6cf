//go:build unix

package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/oshokin/translator-release/internal/domain/release"
)

// Lock is a held flock(2) lock. The kernel drops it when the process exits,
// so a crashed invocation never leaves the root locked.
type Lock struct {
	file *os.File
}

// Acquire takes the lock of root without waiting. Contention is
// release.ErrAlreadyInProgress.
func Acquire(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(Path(root)), os.O_CREATE|os.O_RDWR, lockFileMode)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil { //nolint:gosec // Fd fits in int.
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is locked", release.ErrAlreadyInProgress, root)
		}

		return nil, fmt.Errorf("lock %s: %w", root, err)
	}

	return &Lock{file: file}, nil
}

// Release drops the lock. It is safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN) //nolint:gosec // Fd fits in int.
	closeErr := l.file.Close()
	l.file = nil

	return errors.Join(unlockErr, closeErr)
}
