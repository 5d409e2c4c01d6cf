package release

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DigestLength is the length of a hex-encoded SHA-256 digest.
const DigestLength = 64

// Entry is one line of a checksum manifest.
type Entry struct {
	// Filename is the asset name relative to the asset base location.
	Filename string
	// Digest is the lowercase hex SHA-256 of the asset.
	Digest string
}

// Manifest is the authoritative filename to digest mapping.
// Filenames are unique.
type Manifest struct {
	entries map[string]string
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string]string),
	}
}

// NormalizeDigest validates a hex SHA-256 digest and returns it in lowercase.
func NormalizeDigest(digest string) (string, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if len(digest) != DigestLength {
		return "", fmt.Errorf("digest %q has %d characters, want %d", digest, len(digest), DigestLength)
	}

	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("digest %q is not hex: %w", digest, err)
	}

	return digest, nil
}

// Add records an entry. Adding the same filename twice is allowed only
// when the digests agree.
func (m *Manifest) Add(entry Entry) error {
	digest, err := NormalizeDigest(entry.Digest)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrManifestMalformed, entry.Filename, err)
	}

	if entry.Filename == "" {
		return fmt.Errorf("%w: empty filename", ErrManifestMalformed)
	}

	if existing, ok := m.entries[entry.Filename]; ok && existing != digest {
		return fmt.Errorf("%w: conflicting digests for %s", ErrManifestMalformed, entry.Filename)
	}

	m.entries[entry.Filename] = digest

	return nil
}

// Lookup returns the recorded digest for filename.
func (m *Manifest) Lookup(filename string) (string, bool) {
	if m == nil {
		return "", false
	}

	digest, ok := m.entries[filename]

	return digest, ok
}

// Len reports the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}

	return len(m.entries)
}

// Entries returns all entries sorted by filename.
func (m *Manifest) Entries() []Entry {
	if m == nil {
		return nil
	}

	result := make([]Entry, 0, len(m.entries))
	for filename, digest := range m.entries {
		result = append(result, Entry{Filename: filename, Digest: digest})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Filename < result[j].Filename
	})

	return result
}
