package lifecycle

import (
	"context"

	"github.com/oshokin/translator-release/internal/logger"
)

// Rollback makes the previous release current again, without fetching or
// building anything, then restarts and probes the backend.
func (m *Manager) Rollback(ctx context.Context) (Result, error) {
	ctx = logger.WithName(ctx, "rollback")

	var result Result

	err := m.withLock(func() error {
		if err := m.controller.Available(ctx); err != nil {
			return err
		}

		transition, err := m.activator.Rollback(ctx)
		if err != nil {
			return err
		}

		result.Transition = transition

		if err = m.restartAndProbe(ctx); err != nil {
			return err
		}

		result.Cleanup = m.collector.Run(ctx)

		logger.InfoKV(ctx, "Rolled back", "current", transition.To.ID, "previous", transition.Previous.ID)

		return nil
	})

	return result, err
}

// Healthcheck probes the running backend. It does not take the lock.
func (m *Manager) Healthcheck(ctx context.Context) error {
	ctx = logger.WithName(ctx, "healthcheck")

	return m.health.Run(ctx)
}
