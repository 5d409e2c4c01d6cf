package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HashFile returns the lowercase hex SHA-256 of the file at path. The file is
// streamed through the hash so memory use does not depend on its size.
func HashFile(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DecodeDigest converts a hex digest to bytes.
func DecodeDigest(digest string) ([]byte, error) {
	return hex.DecodeString(digest)
}
