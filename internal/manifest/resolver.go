package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/download"
	"github.com/oshokin/translator-release/internal/logger"
)

// Origin tells which source a manifest was resolved from.
type Origin string

const (
	// OriginExplicit is a manifest path or URL given in configuration.
	OriginExplicit Origin = "explicit"
	// OriginLocal is the manifest of a trusted local source tree.
	OriginLocal Origin = "local"
	// OriginChannel is the manifest published with a channel release.
	OriginChannel Origin = "channel"
)

// Resolved is a parsed manifest together with where its assets live.
type Resolved struct {
	// Manifest is the parsed manifest.
	Manifest *release.Manifest
	// Path is the local manifest file.
	Path string
	// Source is the path or URL the manifest was read from.
	Source string
	// Origin tells which precedence rule produced the manifest.
	Origin Origin
	// AssetBaseURL is where assets named in the manifest are downloaded from.
	AssetBaseURL string

	cleanup func()
}

// Cleanup removes a downloaded manifest. Safe to call on nil and more than once.
func (r *Resolved) Cleanup() {
	if r == nil || r.cleanup == nil {
		return
	}

	r.cleanup()
	r.cleanup = nil
}

// Resolver finds the manifest for an install.
type Resolver struct {
	cfg     *config.Config
	fetcher *download.Fetcher
	tempDir string
}

// NewResolver returns a resolver that downloads remote manifests into tempDir.
func NewResolver(cfg *config.Config, fetcher *download.Fetcher, tempDir string) *Resolver {
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		tempDir: tempDir,
	}
}

// ChannelURL returns the release download location for the configured repository and tag.
func ChannelURL(cfg *config.Config) (string, error) {
	base, err := url.Parse(cfg.Channel.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse channel base url: %w", err)
	}

	if cfg.ResolvedTag() == config.TagLatest {
		base.Path = path.Join("/", base.Path, cfg.Channel.Repo, "releases", "latest", "download")
	} else {
		base.Path = path.Join("/", base.Path, cfg.Channel.Repo, "releases", "download", cfg.ResolvedTag())
	}

	return base.String(), nil
}

// Resolve applies the precedence explicit > trusted local tree > channel,
// then parses the result.
func (r *Resolver) Resolve(ctx context.Context) (*Resolved, error) {
	resolved, err := r.locate(ctx)
	if err != nil {
		return nil, err
	}

	if resolved.AssetBaseURL == "" {
		if resolved.AssetBaseURL, err = r.assetBase(""); err != nil {
			resolved.Cleanup()

			return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
		}
	}

	resolved.Manifest, err = Load(ctx, resolved.Path)
	if err != nil {
		resolved.Cleanup()

		return nil, err
	}

	logger.InfoKV(ctx, "Manifest resolved",
		"origin", resolved.Origin, "source", resolved.Source, "entries", resolved.Manifest.Len())

	return resolved, nil
}

func (r *Resolver) locate(ctx context.Context) (*Resolved, error) {
	if source := r.cfg.Manifest.Source; source != "" {
		if config.IsRemoteSource(source) {
			return r.fetch(ctx, source, OriginExplicit)
		}

		if _, err := os.Stat(source); err != nil {
			return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
		}

		return &Resolved{Path: source, Source: source, Origin: OriginExplicit}, nil
	}

	if r.cfg.LocalAllowed() {
		local := filepath.Join(r.cfg.Install.SourceDir, r.cfg.Manifest.Name)

		_, err := os.Stat(local)
		if err == nil {
			return &Resolved{Path: local, Source: local, Origin: OriginLocal}, nil
		}

		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
		}

		logger.InfoKV(ctx, "Local source tree has no manifest, using the release channel", "path", local)
	}

	channel, err := ChannelURL(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	manifestURL, err := download.JoinURL(channel, r.cfg.Manifest.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	return r.fetch(ctx, manifestURL, OriginChannel)
}

func (r *Resolver) fetch(ctx context.Context, manifestURL string, origin Origin) (*Resolved, error) {
	if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	file, err := os.CreateTemp(r.tempDir, ".manifest-*.part")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	temporaryPath := file.Name()
	_ = file.Close()

	logger.InfoKV(ctx, "Downloading manifest", "url", manifestURL)

	if _, err = r.fetcher.ToFile(ctx, manifestURL, temporaryPath); err != nil {
		_ = os.Remove(temporaryPath)

		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	assetBase, err := r.assetBase(manifestURL)
	if err != nil {
		_ = os.Remove(temporaryPath)

		return nil, fmt.Errorf("%w: %w", release.ErrManifestUnavailable, err)
	}

	return &Resolved{
		Path:         temporaryPath,
		Source:       manifestURL,
		Origin:       origin,
		AssetBaseURL: assetBase,
		cleanup: func() {
			_ = os.Remove(temporaryPath)
		},
	}, nil
}

// assetBase picks assets.base_url, then the directory of manifestURL, then the channel.
func (r *Resolver) assetBase(manifestURL string) (string, error) {
	if r.cfg.Assets.BaseURL != "" {
		return r.cfg.Assets.BaseURL, nil
	}

	if manifestURL != "" {
		parsed, err := url.Parse(manifestURL)
		if err != nil {
			return "", err
		}

		parsed.Path = path.Dir(parsed.Path)
		parsed.RawQuery = ""

		return parsed.String(), nil
	}

	return ChannelURL(r.cfg)
}
