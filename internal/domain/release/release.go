package release

import (
	"path/filepath"
	"time"
)

// Directory names inside the application root.
const (
	ReleasesDirName = "releases"
	CacheDirName    = "cache"
)

// Subdirectory and file names inside a release directory.
const (
	AppDirName       = "app"
	RuntimeDirName   = "runtime-env"
	DataDirName      = "data"
	ExtensionDirName = "extension"
	MetadataFilename = "release.yaml"
)

// Source describes where the application tree of a release came from.
type Source string

const (
	// SourceLocal means the tree was copied from a trusted local checkout.
	SourceLocal Source = "local"
	// SourceRemote means the tree was extracted from a verified archive.
	SourceRemote Source = "remote"
)

// Release is an immutable, self-contained release directory.
type Release struct {
	// ID is the directory name under <root>/releases.
	ID string
	// Dir is the absolute release directory.
	Dir string
}

// New returns the release with the given id under releasesDir.
func New(releasesDir, id string) Release {
	return Release{
		ID:  id,
		Dir: filepath.Join(releasesDir, id),
	}
}

// FromDir returns the release rooted at dir.
func FromDir(dir string) Release {
	dir = filepath.Clean(dir)

	return Release{
		ID:  filepath.Base(dir),
		Dir: dir,
	}
}

// AppDir is the application subtree.
func (r Release) AppDir() string {
	return filepath.Join(r.Dir, AppDirName)
}

// RuntimeDir is the isolated runtime environment of this release.
func (r Release) RuntimeDir() string {
	return filepath.Join(r.Dir, RuntimeDirName)
}

// DataDir holds the offline data assets.
func (r Release) DataDir() string {
	return filepath.Join(r.Dir, DataDirName)
}

// ExtensionDir holds the unpacked desktop extension, when one is shipped.
func (r Release) ExtensionDir() string {
	return filepath.Join(r.Dir, ExtensionDirName)
}

// MetadataPath is the path of the build-complete marker.
func (r Release) MetadataPath() string {
	return filepath.Join(r.Dir, MetadataFilename)
}

// IsZero reports whether r is the zero value.
func (r Release) IsZero() bool {
	return r.ID == "" && r.Dir == ""
}

// Metadata is persisted as release.yaml once a release is fully built.
type Metadata struct {
	// ID repeats the release id.
	ID string `yaml:"id"`
	// Tag is the channel tag the release was built from, if any.
	Tag string `yaml:"tag,omitempty"`
	// Source tells whether the app tree came from a local checkout or an archive.
	Source Source `yaml:"source"`
	// BuiltAt is when the build finished.
	BuiltAt time.Time `yaml:"built_at"`
	// Assets maps installed asset filenames to their verified digests.
	Assets map[string]string `yaml:"assets,omitempty"`
}
