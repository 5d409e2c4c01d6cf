package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/download"
	"github.com/oshokin/translator-release/internal/fsutil"
	"github.com/oshokin/translator-release/internal/logger"
)

// cacheDirMode is the permission of the cache directory.
const cacheDirMode = 0o755

var errUnsafeFilename = errors.New("asset filename must be a plain file name")

// CachedAsset is a verified asset on local disk.
type CachedAsset struct {
	// Filename is the manifest filename.
	Filename string
	// Path is where the verified bytes are.
	Path string
	// Digest is the digest the bytes were verified against.
	Digest string
	// Local is true when the asset came from the trusted local source tree.
	Local bool
}

// Cache resolves assets in the order: trusted local tree, cache, download.
type Cache struct {
	dir       string
	fetcher   *download.Fetcher
	baseURL   string
	localDirs []string
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBaseURL sets where missing assets are downloaded from.
func WithBaseURL(baseURL string) CacheOption {
	return func(c *Cache) {
		c.baseURL = baseURL
	}
}

// WithLocalDirs declares trusted local directories searched before the cache.
func WithLocalDirs(dirs ...string) CacheOption {
	return func(c *Cache) {
		c.localDirs = append(c.localDirs, dirs...)
	}
}

// NewCache returns a cache stored in dir.
func NewCache(dir string, fetcher *download.Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		dir:     filepath.Clean(dir),
		fetcher: fetcher,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns a local copy of filename whose SHA-256 equals the manifest
// digest. A trusted local file that does not match is fatal. A cached copy
// that does not match is discarded and downloaded again; when that download
// is impossible the mismatch is reported, never the tampered file.
func (c *Cache) Get(ctx context.Context, filename string, m *release.Manifest) (CachedAsset, error) {
	if err := checkFilename(filename); err != nil {
		return CachedAsset{}, fmt.Errorf("%w: %s: %w", release.ErrAssetUnavailable, filename, err)
	}

	want, ok := m.Lookup(filename)
	if !ok {
		return CachedAsset{}, fmt.Errorf("%w: no entry for %s", release.ErrManifestMalformed, filename)
	}

	ctx = logger.WithKV(ctx, "asset", filename)

	if asset, found, err := c.fromLocal(ctx, filename, want); found || err != nil {
		return asset, err
	}

	cachedPath := filepath.Join(c.dir, filename)

	staleErr := c.checkCached(ctx, cachedPath, want)
	if staleErr == nil {
		logger.DebugKV(ctx, "Cache hit", "path", cachedPath)

		return CachedAsset{Filename: filename, Path: cachedPath, Digest: want}, nil
	}

	asset, err := c.fetch(ctx, filename, want)
	if err != nil {
		if errors.Is(staleErr, release.ErrChecksumMismatch) && !errors.Is(err, release.ErrChecksumMismatch) {
			return CachedAsset{}, fmt.Errorf("%w (refetch failed: %w)", staleErr, err)
		}

		return CachedAsset{}, err
	}

	return asset, nil
}

// fromLocal looks for filename in the trusted local directories.
func (c *Cache) fromLocal(ctx context.Context, filename, want string) (CachedAsset, bool, error) {
	for _, dir := range c.localDirs {
		path := filepath.Join(dir, filename)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		got, err := HashFile(path)
		if err != nil {
			return CachedAsset{}, true, fmt.Errorf("%w: %w", release.ErrAssetUnavailable, err)
		}

		if got != want {
			return CachedAsset{}, true, fmt.Errorf("%w: local %s: got %s, want %s",
				release.ErrChecksumMismatch, path, got, want)
		}

		logger.InfoKV(ctx, "Using trusted local asset", "path", path)

		return CachedAsset{Filename: filename, Path: path, Digest: want, Local: true}, true, nil
	}

	return CachedAsset{}, false, nil
}

// checkCached returns nil when the cached copy matches, os.ErrNotExist on a
// miss and ErrChecksumMismatch after discarding a stale copy.
func (c *Cache) checkCached(ctx context.Context, path, want string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	got, err := HashFile(path)
	if err == nil && got == want {
		return nil
	}

	logger.WarnKV(ctx, "Cached asset does not match the manifest, discarding", "path", path, "got", got)

	if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove stale cache entry", "error", removeErr)
	}

	if err != nil {
		return err
	}

	return fmt.Errorf("%w: cached %s: got %s, want %s", release.ErrChecksumMismatch, path, got, want)
}

// fetch downloads filename to a partial file, verifies it and moves it into the cache.
func (c *Cache) fetch(ctx context.Context, filename, want string) (CachedAsset, error) {
	if c.baseURL == "" {
		return CachedAsset{}, fmt.Errorf("%w: %s: no download location", release.ErrAssetUnavailable, filename)
	}

	assetURL, err := download.JoinURL(c.baseURL, filename)
	if err != nil {
		return CachedAsset{}, fmt.Errorf("%w: %w", release.ErrAssetUnavailable, err)
	}

	if err = os.MkdirAll(c.dir, cacheDirMode); err != nil {
		return CachedAsset{}, fmt.Errorf("%w: create cache: %w", release.ErrAssetUnavailable, err)
	}

	partialPath := filepath.Join(c.dir, "."+filename+".part")
	defer func() {
		_ = os.Remove(partialPath)
	}()

	logger.InfoKV(ctx, "Downloading asset", "url", assetURL)

	got, err := c.fetcher.ToFile(ctx, assetURL, partialPath)
	if err != nil {
		return CachedAsset{}, fmt.Errorf("%w: %w", release.ErrAssetUnavailable, err)
	}

	if got != want {
		return CachedAsset{}, fmt.Errorf("%w: downloaded %s: got %s, want %s",
			release.ErrChecksumMismatch, filename, got, want)
	}

	cachedPath := filepath.Join(c.dir, filename)
	if err = os.Rename(partialPath, cachedPath); err != nil {
		return CachedAsset{}, fmt.Errorf("%w: store in cache: %w", release.ErrAssetUnavailable, err)
	}

	fsutil.SyncDir(c.dir)

	logger.InfoKV(ctx, "Asset verified", "digest", want)

	return CachedAsset{Filename: filename, Path: cachedPath, Digest: want}, nil
}

func checkFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || strings.HasPrefix(filename, ".") {
		return errUnsafeFilename
	}

	return nil
}
