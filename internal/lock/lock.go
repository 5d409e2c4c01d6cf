package lock

import (
	"path/filepath"
)

// Filename is the lock file inside the application root.
const Filename = ".lock"

const lockFileMode = 0o600

// Path returns the lock file of root.
func Path(root string) string {
	return filepath.Join(root, Filename)
}
