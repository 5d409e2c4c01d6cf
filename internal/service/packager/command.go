package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/translator-release/internal/assets"
	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/fsutil"
	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/manifest"
)

// manifestFileMode is the permission of the written manifest.
const manifestFileMode = 0o644

// Options contains inputs for the packager entry point.
type Options struct {
	// Dir holds the release assets.
	Dir string
	// Files restricts the manifest to these names; empty means every regular file in Dir.
	Files []string
	// Output is the manifest path, Dir/SHA256SUMS by default.
	Output string
	// Check verifies Dir against Output instead of writing it.
	Check bool
}

var (
	errNoFiles     = errors.New("no release assets found")
	errNestedFile  = errors.New("asset must be a file directly inside the directory")
	errCheckFailed = errors.New("assets do not match the manifest")
)

// Run writes or checks the manifest.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "manifest")

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(dir, config.DefaultManifestName)
	}

	if opts.Check {
		return check(ctx, dir, output)
	}

	names, err := listAssets(dir, opts.Files, output)
	if err != nil {
		return err
	}

	m := release.NewManifest()

	for _, name := range names {
		digest, hashErr := assets.HashFile(filepath.Join(dir, name))
		if hashErr != nil {
			return hashErr
		}

		if err = m.Add(release.Entry{Filename: name, Digest: digest}); err != nil {
			return err
		}

		logger.DebugKV(ctx, "Hashed asset", "file", name, "digest", digest)
	}

	var buf bytes.Buffer
	if err = manifest.Format(&buf, m); err != nil {
		return err
	}

	if err = fsutil.WriteFileAtomic(output, buf.Bytes(), manifestFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printNextSteps(ctx, output, names)

	return nil
}

// check re-hashes every manifest entry found in dir.
func check(ctx context.Context, dir, output string) error {
	m, err := manifest.Load(ctx, output)
	if err != nil {
		return err
	}

	var failed []string

	for _, entry := range m.Entries() {
		got, hashErr := assets.HashFile(filepath.Join(dir, entry.Filename))

		switch {
		case hashErr != nil:
			failed = append(failed, entry.Filename+": "+hashErr.Error())
		case got != entry.Digest:
			failed = append(failed, entry.Filename+": checksum mismatch")
		default:
			logger.InfoKV(ctx, "OK", "file", entry.Filename)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w:\n%s", errCheckFailed, strings.Join(failed, "\n"))
	}

	return nil
}

// listAssets returns the sorted names to hash, never the manifest itself.
func listAssets(dir string, files []string, output string) ([]string, error) {
	outputAbs, _ := filepath.Abs(output)

	if len(files) > 0 {
		names := make([]string, 0, len(files))

		for _, name := range files {
			if filepath.Base(name) != name {
				return nil, fmt.Errorf("%w: %s", errNestedFile, name)
			}

			names = append(names, name)
		}

		sort.Strings(names)

		return names, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if abs, _ := filepath.Abs(filepath.Join(dir, entry.Name())); abs == outputAbs {
			continue
		}

		names = append(names, entry.Name())
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoFiles, dir)
	}

	sort.Strings(names)

	return names, nil
}

// printNextSteps logs what to publish.
func printNextSteps(ctx context.Context, output string, names []string) {
	var builder strings.Builder

	builder.WriteString("Manifest written to ")
	builder.WriteString(output)
	builder.WriteString(". Attach it to the release together with:\n")
	builder.WriteString(strings.Join(names, ",\n"))

	logger.Info(ctx, builder.String())
}
