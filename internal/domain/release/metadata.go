package release

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/translator-release/internal/fsutil"
)

// metadataFileMode is the permission of release.yaml.
const metadataFileMode = 0o644

// ErrNotBuilt is returned when a release directory has no release.yaml.
var ErrNotBuilt = errors.New("release is not fully built")

// ReadMetadata loads release.yaml of r.
func ReadMetadata(r Release) (*Metadata, error) {
	contents, err := os.ReadFile(r.MetadataPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", r.ID, ErrNotBuilt)
		}

		return nil, fmt.Errorf("read release metadata: %w", err)
	}

	var metadata Metadata
	if err = yaml.Unmarshal(contents, &metadata); err != nil {
		return nil, fmt.Errorf("decode release metadata: %w", err)
	}

	return &metadata, nil
}

// WriteMetadata atomically writes release.yaml of r. It marks the release as fully built.
func WriteMetadata(r Release, metadata *Metadata) error {
	data, err := yaml.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode release metadata: %w", err)
	}

	if err = fsutil.WriteFileAtomic(r.MetadataPath(), data, metadataFileMode); err != nil {
		return fmt.Errorf("write release metadata: %w", err)
	}

	return nil
}

// IsBuilt reports whether r exists on disk and carries release.yaml.
func IsBuilt(r Release) bool {
	info, err := os.Stat(r.MetadataPath())

	return err == nil && info.Mode().IsRegular()
}
