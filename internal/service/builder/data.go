package builder

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/translator-release/internal/assets"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"

	// Register SHA-256 for go-update checksum validation.
	_ "crypto/sha256"

	// Register the pure-Go sqlite driver used for data smoke checks.
	_ "modernc.org/sqlite"
)

// dataFileMode is the permission of installed data assets.
const dataFileMode = 0o644

var errQuickCheck = errors.New("sqlite quick_check failed")

// placeData copies a verified asset into the release with a checksum-checked
// apply, then hashes the placed copy again on its own.
func placeData(ctx context.Context, asset assets.CachedAsset, dst string) error {
	checksum, err := assets.DecodeDigest(asset.Digest)
	if err != nil {
		return fmt.Errorf("decode digest of %s: %w", asset.Filename, err)
	}

	// go-update replaces an existing target, so one has to be there.
	placeholder, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	_ = placeholder.Close()

	source, err := os.Open(filepath.Clean(asset.Path))
	if err != nil {
		return fmt.Errorf("open %s: %w", asset.Path, err)
	}

	defer func() {
		_ = source.Close()
	}()

	err = goupdate.Apply(source, goupdate.Options{
		TargetPath: dst,
		TargetMode: dataFileMode,
		Checksum:   checksum,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return fmt.Errorf("%w: place %s: %w", release.ErrChecksumMismatch, asset.Filename, err)
	}

	_ = os.Remove(filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".old"))

	got, err := assets.HashFile(dst)
	if err != nil {
		return err
	}

	if got != asset.Digest {
		return fmt.Errorf("%w: installed %s: got %s, want %s", release.ErrChecksumMismatch, dst, got, asset.Digest)
	}

	logger.DebugKV(ctx, "Data asset placed", "path", dst)

	return nil
}

// isSQLite reports whether a data asset is a SQLite database by its name.
func isSQLite(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sqlite", ".sqlite3":
		return true
	default:
		return false
	}
}

// checkSQLite opens the database read-only and runs PRAGMA quick_check.
func checkSQLite(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = db.Close()
	}()

	var result string
	if err = db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check %s: %w", path, err)
	}

	if result != "ok" {
		return fmt.Errorf("%w: %s: %s", errQuickCheck, path, result)
	}

	return nil
}
