package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/translator-release/internal/archive"
	"github.com/oshokin/translator-release/internal/assets"
	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/fsutil"
	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/repository/pointer"
)

const (
	releaseDirMode = 0o755
	// extractDirName is the scratch directory archives are unpacked into.
	extractDirName = ".extract"
)

var (
	errLayout     = errors.New("application tree lacks required directories")
	errNoManifest = errors.New("manifest is not set")
	errReferenced = errors.New("release directory is referenced by a pointer")
)

// AssetSource returns verified local copies of manifest assets.
type AssetSource interface {
	Get(ctx context.Context, filename string, m *release.Manifest) (assets.CachedAsset, error)
}

// Request describes one build.
type Request struct {
	// ID overrides the release id.
	ID string
	// Tag is the channel tag the assets come from.
	Tag string
	// Manifest verifies every asset.
	Manifest *release.Manifest
}

// Builder builds release directories.
type Builder struct {
	cfg         *config.Config
	assets      AssetSource
	pointers    pointer.Store
	provisioner Provisioner
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithProvisioner replaces the runtime provisioner. nil disables provisioning.
func WithProvisioner(p Provisioner) Option {
	return func(b *Builder) {
		b.provisioner = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// New returns a builder.
func New(cfg *config.Config, source AssetSource, pointers pointer.Store, opts ...Option) *Builder {
	b := &Builder{
		cfg:      cfg,
		assets:   source,
		pointers: pointers,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// ReleasesDir is where release directories live.
func (b *Builder) ReleasesDir() string {
	return filepath.Join(b.cfg.Root, release.ReleasesDirName)
}

// Build materializes a new release. On error the release directory is gone
// and the error wraps release.ErrReleaseBuildFailed together with its cause.
func (b *Builder) Build(ctx context.Context, req Request) (rel release.Release, err error) {
	if req.Manifest == nil {
		return release.Release{}, fmt.Errorf("%w: %w", release.ErrReleaseBuildFailed, errNoManifest)
	}

	referenced := b.referencedIDs(ctx)

	id := AllocateID(req.ID, req.Tag, b.now(), referenced)
	if _, taken := referenced[id]; taken {
		return release.Release{}, fmt.Errorf("%w: %s: %w", release.ErrReleaseBuildFailed, id, errReferenced)
	}

	rel = release.New(b.ReleasesDir(), id)
	ctx = logger.WithKV(ctx, "release", id)

	logger.InfoKV(ctx, "Building release", "path", rel.Dir)

	if err = os.RemoveAll(rel.Dir); err != nil {
		return release.Release{}, fmt.Errorf("%w: clear %s: %w", release.ErrReleaseBuildFailed, rel.Dir, err)
	}

	if err = os.MkdirAll(rel.Dir, releaseDirMode); err != nil {
		return release.Release{}, fmt.Errorf("%w: create %s: %w", release.ErrReleaseBuildFailed, rel.Dir, err)
	}

	defer func() {
		if err == nil {
			return
		}

		if removeErr := os.RemoveAll(rel.Dir); removeErr != nil {
			logger.WarnKV(ctx, "Unable to remove failed release", "error", removeErr)
		}

		err = fmt.Errorf("%w: %s: %w", release.ErrReleaseBuildFailed, id, err)
		rel = release.Release{}
	}()

	metadata := &release.Metadata{
		ID:     id,
		Tag:    req.Tag,
		Assets: make(map[string]string),
	}

	if metadata.Source, err = b.buildApp(ctx, rel, req.Manifest, metadata); err != nil {
		return rel, err
	}

	if err = b.buildExtension(ctx, rel, req.Manifest, metadata); err != nil {
		return rel, err
	}

	if err = b.buildData(ctx, rel, req.Manifest, metadata); err != nil {
		return rel, err
	}

	if err = b.buildModel(ctx, rel, req.Manifest, metadata); err != nil {
		return rel, err
	}

	if b.cfg.Runtime.Enabled && b.provisioner != nil {
		if err = b.provisioner.Provision(ctx, rel); err != nil {
			return rel, err
		}
	}

	metadata.BuiltAt = b.now().UTC()
	if err = release.WriteMetadata(rel, metadata); err != nil {
		return rel, err
	}

	logger.Info(ctx, "Release built")

	return rel, nil
}

// referencedIDs returns the ids current and previous point at.
func (b *Builder) referencedIDs(ctx context.Context) map[string]struct{} {
	referenced := make(map[string]struct{}, 2)

	for _, name := range []pointer.Name{pointer.Current, pointer.Previous} {
		target, err := b.pointers.Read(ctx, name)
		if err == nil && filepath.Dir(target.Dir) == b.ReleasesDir() {
			referenced[target.ID] = struct{}{}
		}
	}

	return referenced
}

func (b *Builder) buildApp(
	ctx context.Context,
	rel release.Release,
	m *release.Manifest,
	metadata *release.Metadata,
) (release.Source, error) {
	required := b.cfg.Layout.RequiredDirs

	if b.cfg.LocalAllowed() {
		logger.InfoKV(ctx, "Copying trusted source tree", "source", b.cfg.Install.SourceDir)

		exclude := make(map[string]struct{}, len(b.cfg.Install.Exclude))
		for _, name := range b.cfg.Install.Exclude {
			exclude[name] = struct{}{}
		}

		if err := fsutil.CopyTree(b.cfg.Install.SourceDir, rel.AppDir(), exclude, b.cfg.Root); err != nil {
			return "", fmt.Errorf("copy source tree: %w", err)
		}

		if !archive.HasLayout(rel.AppDir(), required) {
			return "", fmt.Errorf("%w: %s: need %v", errLayout, b.cfg.Install.SourceDir, required)
		}

		return release.SourceLocal, nil
	}

	asset, err := b.assets.Get(ctx, b.cfg.Assets.AppArchive, m)
	if err != nil {
		return "", err
	}

	metadata.Assets[asset.Filename] = asset.Digest

	scratch := filepath.Join(rel.Dir, extractDirName)
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	logger.InfoKV(ctx, "Extracting application archive", "archive", asset.Filename)

	if err = archive.Extract(ctx, asset.Path, asset.Filename, scratch); err != nil {
		return "", fmt.Errorf("extract %s: %w", asset.Filename, err)
	}

	if err = archive.Promote(scratch, rel.AppDir(), required); err != nil {
		return "", fmt.Errorf("%w: %w", errLayout, err)
	}

	return release.SourceRemote, nil
}

func (b *Builder) buildExtension(
	ctx context.Context,
	rel release.Release,
	m *release.Manifest,
	metadata *release.Metadata,
) error {
	name := b.cfg.Assets.ExtensionArchive
	if name == "" {
		return nil
	}

	asset, err := b.assets.Get(ctx, name, m)
	if err != nil {
		return err
	}

	metadata.Assets[asset.Filename] = asset.Digest

	logger.InfoKV(ctx, "Extracting desktop extension", "archive", asset.Filename)

	if err = archive.Extract(ctx, asset.Path, asset.Filename, rel.ExtensionDir()); err != nil {
		return fmt.Errorf("extract %s: %w", asset.Filename, err)
	}

	return nil
}

func (b *Builder) buildData(
	ctx context.Context,
	rel release.Release,
	m *release.Manifest,
	metadata *release.Metadata,
) error {
	if len(b.cfg.Assets.DataFiles) == 0 {
		return nil
	}

	if err := os.MkdirAll(rel.DataDir(), releaseDirMode); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	for _, name := range b.cfg.Assets.DataFiles {
		asset, err := b.assets.Get(ctx, name, m)
		if err != nil {
			return err
		}

		dst := filepath.Join(rel.DataDir(), name)
		if err = placeData(ctx, asset, dst); err != nil {
			return err
		}

		if isSQLite(name) {
			if err = checkSQLite(ctx, dst); err != nil {
				return err
			}
		}

		metadata.Assets[asset.Filename] = asset.Digest
	}

	return nil
}
