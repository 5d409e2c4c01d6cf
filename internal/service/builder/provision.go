package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/translator-release/internal/command"
	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
)

// Provisioner creates the runtime environment of one release and checks that
// its critical native dependency loads.
type Provisioner interface {
	Provision(ctx context.Context, rel release.Release) error
}

// VenvProvisioner builds a python virtual environment inside the release.
type VenvProvisioner struct {
	cfg    config.RuntimeConfig
	runner command.Runner
}

// NewVenvProvisioner returns a provisioner running commands through runner.
func NewVenvProvisioner(cfg config.RuntimeConfig, runner command.Runner) *VenvProvisioner {
	return &VenvProvisioner{
		cfg:    cfg,
		runner: runner,
	}
}

// Provision creates <release>/runtime-env, installs the requirements of the
// app tree and imports the smoke-check module with the new interpreter.
func (p *VenvProvisioner) Provision(ctx context.Context, rel release.Release) error {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	env := rel.RuntimeDir()

	logger.InfoKV(ctx, "Creating runtime environment", "path", env)

	if _, err := p.runner.Run(ctx, p.cfg.Interpreter, "-m", "venv", env); err != nil {
		return fmt.Errorf("create runtime environment: %w", err)
	}

	python := filepath.Join(env, "bin", config.RuntimePython)

	if p.cfg.Requirements != "" {
		requirements := filepath.Join(rel.AppDir(), p.cfg.Requirements)

		_, err := os.Stat(requirements)

		switch {
		case err == nil:
			logger.InfoKV(ctx, "Installing requirements", "file", requirements)

			if _, err = p.runner.Run(ctx, python, "-m", "pip", "install",
				"--disable-pip-version-check", "--no-input", "-r", requirements); err != nil {
				return fmt.Errorf("install requirements: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			logger.WarnKV(ctx, "Requirements file not found, skipping", "file", requirements)
		default:
			return fmt.Errorf("stat requirements: %w", err)
		}
	}

	if p.cfg.SmokeImport != "" {
		logger.InfoKV(ctx, "Running smoke check", "import", p.cfg.SmokeImport)

		if _, err := p.runner.Run(ctx, python, "-c", "import "+p.cfg.SmokeImport); err != nil {
			return fmt.Errorf("smoke check %s: %w", p.cfg.SmokeImport, err)
		}
	}

	return nil
}
