package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/translator-release/internal/assets"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/manifest"
	"github.com/oshokin/translator-release/internal/service/activator"
	"github.com/oshokin/translator-release/internal/service/builder"
	"github.com/oshokin/translator-release/internal/service/retention"
)

// InstallOptions tune a single install.
type InstallOptions struct {
	// ReleaseID overrides the generated release id.
	ReleaseID string
}

// Result describes a completed activation.
type Result struct {
	// Transition is the pointer change.
	Transition activator.Transition
	// Cleanup is what retention removed.
	Cleanup retention.Report
	// RolledBack is set when a failed probe re-activated the previous release.
	RolledBack bool
}

// Install builds and activates a new release. Update is the same operation.
func (m *Manager) Install(ctx context.Context, opts InstallOptions) (Result, error) {
	ctx = logger.WithName(ctx, "install")

	var result Result

	err := m.withLock(func() error {
		var err error

		result, err = m.install(ctx, opts)

		return err
	})

	return result, err
}

func (m *Manager) install(ctx context.Context, opts InstallOptions) (Result, error) {
	if err := m.controller.Available(ctx); err != nil {
		return Result{}, err
	}

	resolved, err := manifest.NewResolver(m.cfg, m.fetcher, m.cacheDir()).Resolve(ctx)
	if err != nil {
		return Result{}, err
	}

	defer resolved.Cleanup()

	cache := assets.NewCache(m.cacheDir(), m.fetcher,
		assets.WithBaseURL(resolved.AssetBaseURL),
		assets.WithLocalDirs(m.localDataDirs()...),
	)

	b := builder.New(m.cfg, cache, m.pointers,
		builder.WithProvisioner(m.provisioner),
		builder.WithClock(m.now),
	)

	rel, err := b.Build(ctx, builder.Request{
		ID:       opts.ReleaseID,
		Tag:      m.cfg.ResolvedTag(),
		Manifest: resolved.Manifest,
	})
	if err != nil {
		return Result{}, err
	}

	transition, err := m.activator.Activate(ctx, rel)
	if err != nil {
		return Result{Transition: transition}, err
	}

	result := Result{Transition: transition}

	if err = m.restartAndProbe(ctx); err != nil {
		probeFailed := errors.Is(err, release.ErrHealthCheckFailed) || errors.Is(err, release.ErrHealthCheckTimeout)
		if !probeFailed || !m.cfg.Health.AutoRollback {
			return result, err
		}

		return m.revert(ctx, result, err)
	}

	result.Cleanup = m.collector.Run(ctx)

	logger.InfoKV(ctx, "Release activated", "release", rel.ID)

	return result, nil
}

// revert re-activates the previous release after a failed probe. The probe
// error is returned either way.
func (m *Manager) revert(ctx context.Context, result Result, probeErr error) (Result, error) {
	if result.Transition.From.IsZero() || !release.IsBuilt(result.Transition.From) {
		logger.Warn(ctx, "Health check failed and there is no release to roll back to")

		return result, probeErr
	}

	logger.WarnKV(ctx, "Health check failed, rolling back", "to", result.Transition.From.ID, "error", probeErr)

	if _, err := m.activator.Rollback(ctx); err != nil {
		return result, errors.Join(probeErr, fmt.Errorf("automatic rollback: %w", err))
	}

	if err := m.controller.Restart(ctx); err != nil {
		return result, errors.Join(probeErr, fmt.Errorf("automatic rollback: %w", err))
	}

	result.RolledBack = true

	return result, fmt.Errorf("%w (rolled back to %s)", probeErr, result.Transition.From.ID)
}

// restartAndProbe restarts the backend and, unless disabled, probes it.
func (m *Manager) restartAndProbe(ctx context.Context) error {
	logger.Info(ctx, "Restarting backend")

	if err := m.controller.Restart(ctx); err != nil {
		return err
	}

	if !m.cfg.Health.Enabled {
		logger.Warn(ctx, "Health check disabled, skipping")

		return nil
	}

	return m.health.Run(ctx)
}
