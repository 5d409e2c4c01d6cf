package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is an archive container and compression pair.
type Format string

// Supported formats.
const (
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
	FormatTarLZ4  Format = "tar.lz4"
	FormatTar     Format = "tar"
	FormatZip     Format = "zip"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

var (
	// ErrUnsupportedFormat is returned for an archive name with an unknown suffix.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrUnsafePath is returned for an entry escaping the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// DetectFormat picks the format from the archive file name.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)

	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd, nil
	case strings.HasSuffix(lower, ".tar.lz4"):
		return FormatTarLZ4, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// Extract unpacks the archive at path into dst. name decides the format and
// defaults to the base name of path.
func Extract(ctx context.Context, path, name, dst string) error {
	if name == "" {
		name = filepath.Base(path)
	}

	format, err := DetectFormat(name)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(dst, dirMode); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if format == FormatZip {
		return extractZip(ctx, path, dst)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	var stream io.Reader = file

	switch format {
	case FormatTarGzip:
		gz, gzErr := gzip.NewReader(file)
		if gzErr != nil {
			return fmt.Errorf("open gzip stream: %w", gzErr)
		}

		defer func() {
			_ = gz.Close()
		}()

		stream = gz
	case FormatTarZstd:
		zr, zErr := zstd.NewReader(file)
		if zErr != nil {
			return fmt.Errorf("open zstd stream: %w", zErr)
		}

		defer zr.Close()

		stream = zr
	case FormatTarLZ4:
		stream = lz4.NewReader(file)
	case FormatTar, FormatZip:
	}

	return extractTar(ctx, tar.NewReader(stream), dst)
}

//nolint:cyclop // One switch over tar entry types.
func extractTar(ctx context.Context, tr *tar.Reader, dst string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}

		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target, err := safeJoin(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, dirMode); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
		case tar.TypeReg:
			if err = writeFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err = writeSymlink(dst, target, header.Linkname); err != nil {
				return err
			}
		default:
			// Devices, fifos and hard links have no place in an application tree.
			continue
		}
	}
}

func extractZip(ctx context.Context, path, dst string) error {
	reader, err := zip.OpenReader(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		if err = ctx.Err(); err != nil {
			return err
		}

		target, joinErr := safeJoin(dst, entry.Name)
		if joinErr != nil {
			return joinErr
		}

		if entry.FileInfo().IsDir() {
			if err = os.MkdirAll(target, dirMode); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}

			continue
		}

		if err = extractZipEntry(entry, target); err != nil {
			return err
		}
	}

	return nil
}

func extractZipEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = rc.Close()
	}()

	return writeFile(target, rc, entry.Mode().Perm())
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = fileMode
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if _, err = io.Copy(out, r); err != nil { //nolint:gosec // Archives are verified against the manifest first.
		_ = out.Close()

		return fmt.Errorf("write %s: %w", target, err)
	}

	return out.Close()
}

func writeSymlink(root, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}

	if !within(root, resolved) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, target, linkname)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}

	_ = os.Remove(target)

	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}

	return nil
}

func safeJoin(root, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
