package manifest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
)

// Parse reads a manifest in sha256sum format. Blank lines and # comments are
// skipped, a leading "*" (binary mode marker) and "./" on filenames are
// dropped, and lines that do not parse are ignored. At least one entry must
// parse.
func Parse(ctx context.Context, r io.Reader) (*release.Manifest, error) {
	m := release.NewManifest()
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, ok := parseLine(line)
		if !ok {
			logger.DebugKV(ctx, "Skipping manifest line", "line", lineNumber)
			continue
		}

		if err := m.Add(entry); err != nil {
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read: %w", release.ErrManifestMalformed, err)
	}

	if m.Len() == 0 {
		return nil, fmt.Errorf("%w: no entries", release.ErrManifestMalformed)
	}

	return m, nil
}

// Load parses the manifest file at path.
func Load(ctx context.Context, path string) (*release.Manifest, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	defer func() {
		_ = file.Close()
	}()

	return Parse(ctx, file)
}

func parseLine(line string) (release.Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return release.Entry{}, false
	}

	digest, err := release.NormalizeDigest(fields[0])
	if err != nil {
		return release.Entry{}, false
	}

	// Filenames may contain spaces: take everything after the digest.
	name := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	name = strings.TrimPrefix(name, "*")
	name = strings.TrimPrefix(name, "./")

	if name == "" {
		return release.Entry{}, false
	}

	return release.Entry{Filename: name, Digest: digest}, true
}

// Format writes entries in the format Parse reads.
func Format(w io.Writer, m *release.Manifest) error {
	for _, entry := range m.Entries() {
		if _, err := fmt.Fprintf(w, "%s  %s\n", entry.Digest, entry.Filename); err != nil {
			return err
		}
	}

	return nil
}
