package pointer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/fsutil"
)

// Name identifies a pointer.
type Name string

const (
	// Current is the release the supervisor runs.
	Current Name = "current"
	// Previous is the rollback target.
	Previous Name = "previous"
)

// ErrNotFound is returned when a pointer does not exist.
var ErrNotFound = errors.New("pointer not found")

// Store reads and replaces pointers.
type Store interface {
	// Read returns the release a pointer refers to. The release directory may
	// no longer exist; callers check with release.IsBuilt.
	Read(ctx context.Context, name Name) (release.Release, error)
	// Write atomically points name at rel.
	Write(ctx context.Context, name Name, rel release.Release) error
	// Remove deletes the pointer. Removing a missing pointer is not an error.
	Remove(ctx context.Context, name Name) error
}

// SymlinkStore keeps pointers as relative symlinks inside root.
type SymlinkStore struct {
	// root is the application root holding the pointers.
	root string
	// mu serializes writers inside one process; other processes are kept out by the root lock.
	mu sync.Mutex
}

// NewSymlinkStore creates a store for the application root.
func NewSymlinkStore(root string) *SymlinkStore {
	return &SymlinkStore{
		root: filepath.Clean(root),
	}
}

// Path returns the filesystem location of a pointer.
func (s *SymlinkStore) Path(name Name) string {
	return filepath.Join(s.root, string(name))
}

// Read resolves a pointer symlink.
func (s *SymlinkStore) Read(_ context.Context, name Name) (release.Release, error) {
	target, err := os.Readlink(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return release.Release{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}

		return release.Release{}, fmt.Errorf("read %s pointer: %w", name, err)
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(s.root, target)
	}

	return release.FromDir(target), nil
}

// Write points name at rel by renaming a temporary symlink over the old one.
func (s *SymlinkStore) Write(_ context.Context, name Name, rel release.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := rel.Dir
	if relative, err := filepath.Rel(s.root, rel.Dir); err == nil && !filepath.IsAbs(relative) {
		target = relative
	}

	tmp := filepath.Join(s.root, "."+string(name)+".tmp-"+strconv.FormatInt(time.Now().UnixNano(), 10))

	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create temporary %s pointer: %w", name, err)
	}

	if err := os.Rename(tmp, s.Path(name)); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace %s pointer: %w", name, err)
	}

	fsutil.SyncDir(s.root)

	return nil
}

// Remove deletes a pointer.
func (s *SymlinkStore) Remove(_ context.Context, name Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s pointer: %w", name, err)
	}

	return nil
}

// ReadValid returns the release name refers to when it is fully built.
// Missing, dangling and half-built targets all report ErrNotFound.
func ReadValid(ctx context.Context, store Store, name Name) (release.Release, error) {
	rel, err := store.Read(ctx, name)
	if err != nil {
		return release.Release{}, err
	}

	if !release.IsBuilt(rel) {
		return release.Release{}, fmt.Errorf("%s -> %s: %w", name, rel.Dir, ErrNotFound)
	}

	return rel, nil
}
