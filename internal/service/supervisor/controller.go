package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/translator-release/internal/command"
	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
)

// Controller drives the backend through its supervisor.
type Controller interface {
	// Available reports whether the supervisor itself can be reached.
	Available(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

// New returns the controller for the configured manager.
func New(cfg config.ServiceConfig, runner command.Runner) Controller {
	if cfg.Manager == config.ManagerNone {
		return Noop{}
	}

	return NewSystemd(cfg.Unit, runner, cfg.Timeout)
}

// Systemd controls a systemd user unit with systemctl --user.
type Systemd struct {
	unit    string
	runner  command.Runner
	timeout time.Duration
}

// NewSystemd returns a controller for unit.
func NewSystemd(unit string, runner command.Runner, timeout time.Duration) *Systemd {
	return &Systemd{
		unit:    unit,
		runner:  runner,
		timeout: timeout,
	}
}

// Available checks that the user manager answers.
func (s *Systemd) Available(ctx context.Context) error {
	return s.systemctl(ctx, "show-environment")
}

// Start reloads unit files and starts the unit.
func (s *Systemd) Start(ctx context.Context) error {
	if err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}

	return s.systemctl(ctx, "start", s.unit)
}

// Stop stops the unit.
func (s *Systemd) Stop(ctx context.Context) error {
	return s.systemctl(ctx, "stop", s.unit)
}

// Restart reloads unit files, since activation rewrites them, and restarts the unit.
func (s *Systemd) Restart(ctx context.Context) error {
	if err := s.systemctl(ctx, "daemon-reload"); err != nil {
		return err
	}

	return s.systemctl(ctx, "restart", s.unit)
}

func (s *Systemd) systemctl(ctx context.Context, args ...string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.DebugKV(ctx, "Running systemctl", "args", args)

	if _, err := s.runner.Run(ctx, "systemctl", append([]string{"--user"}, args...)...); err != nil {
		return fmt.Errorf("%w: %w", release.ErrServiceUnavailable, err)
	}

	return nil
}

// Noop is used when nothing supervises the backend.
type Noop struct{}

// Available always succeeds.
func (Noop) Available(context.Context) error { return nil }

// Start does nothing.
func (Noop) Start(context.Context) error { return nil }

// Stop does nothing.
func (Noop) Stop(context.Context) error { return nil }

// Restart does nothing.
func (Noop) Restart(context.Context) error { return nil }
