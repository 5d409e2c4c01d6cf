package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/repository/pointer"
	"github.com/oshokin/translator-release/internal/service/supervisor"
)

// RemoveOptions tune remove.
type RemoveOptions struct {
	// Purge also deletes the asset cache.
	Purge bool
}

// Remove stops the backend, deletes the descriptors, both pointers and every
// release. The asset cache is kept unless Purge is set.
func (m *Manager) Remove(ctx context.Context, opts RemoveOptions) error {
	ctx = logger.WithName(ctx, "remove")

	return m.withLock(func() error {
		if err := m.controller.Stop(ctx); err != nil {
			logger.WarnKV(ctx, "Unable to stop the backend", "error", err)
		}

		m.terminateStray(ctx)

		var errs []error

		if err := m.descriptors.Remove(ctx); err != nil {
			errs = append(errs, fmt.Errorf("remove descriptors: %w", err))
		}

		for _, name := range []pointer.Name{pointer.Current, pointer.Previous} {
			if err := m.pointers.Remove(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}

		if err := os.RemoveAll(m.releasesDir()); err != nil {
			errs = append(errs, fmt.Errorf("remove releases: %w", err))
		}

		if opts.Purge {
			if err := os.RemoveAll(m.cacheDir()); err != nil {
				errs = append(errs, fmt.Errorf("remove cache: %w", err))
			}
		}

		if err := errors.Join(errs...); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Removed", "root", m.cfg.Root, "purged", opts.Purge)

		return nil
	})
}

// terminateStray kills backend processes still running from the root.
func (m *Manager) terminateStray(ctx context.Context) {
	processes, err := supervisor.FindProcesses(m.cfg.Service.ProcessName, m.cfg.Root)
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes", "error", err)

		return
	}

	if len(processes) == 0 {
		return
	}

	logger.InfoKV(ctx, "Terminating backend processes", "count", len(processes))

	if err = supervisor.Terminate(processes); err != nil {
		logger.WarnKV(ctx, "Unable to terminate backend processes", "error", err)
	}
}
