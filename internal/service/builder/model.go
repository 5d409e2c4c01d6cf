package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/translator-release/internal/archive"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
)

// modelScratchName is the extraction directory of the model archive inside the release.
const modelScratchName = ".model-extract"

var errModelIncomplete = errors.New("offline model is incomplete")

// buildModel unpacks the verified offline model archive into
// <release>/data/<model_dir> and checks the marker file is there.
func (b *Builder) buildModel(
	ctx context.Context,
	rel release.Release,
	m *release.Manifest,
	metadata *release.Metadata,
) error {
	name := b.cfg.Assets.ModelArchive
	if name == "" {
		return nil
	}

	asset, err := b.assets.Get(ctx, name, m)
	if err != nil {
		return err
	}

	metadata.Assets[asset.Filename] = asset.Digest

	scratch := filepath.Join(rel.Dir, modelScratchName)
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	logger.InfoKV(ctx, "Extracting offline model", "archive", asset.Filename)

	if err = archive.Extract(ctx, asset.Path, asset.Filename, scratch); err != nil {
		return fmt.Errorf("extract %s: %w", asset.Filename, err)
	}

	root, err := archive.Unwrap(scratch, b.cfg.Assets.ModelDir)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(rel.DataDir(), releaseDirMode); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dst := filepath.Join(rel.DataDir(), b.cfg.Assets.ModelDir)
	if err = os.Rename(root, dst); err != nil {
		return fmt.Errorf("place offline model: %w", err)
	}

	marker := filepath.Join(dst, filepath.FromSlash(b.cfg.Assets.ModelMarker))
	if _, err = os.Stat(marker); err != nil {
		return fmt.Errorf("%w: %s: %w", errModelIncomplete, b.cfg.Assets.ModelMarker, err)
	}

	return nil
}
