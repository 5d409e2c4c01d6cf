package lifecycle

import (
	"context"
	"path/filepath"
	"time"

	"github.com/oshokin/translator-release/internal/command"
	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/download"
	"github.com/oshokin/translator-release/internal/lock"
	"github.com/oshokin/translator-release/internal/repository/pointer"
	"github.com/oshokin/translator-release/internal/service/activator"
	"github.com/oshokin/translator-release/internal/service/builder"
	"github.com/oshokin/translator-release/internal/service/probe"
	"github.com/oshokin/translator-release/internal/service/retention"
	"github.com/oshokin/translator-release/internal/service/supervisor"
)

// HealthChecker verifies the running backend.
type HealthChecker interface {
	Run(ctx context.Context) error
}

// Manager wires the lifecycle components for one application root.
type Manager struct {
	cfg         *config.Config
	fetcher     *download.Fetcher
	pointers    pointer.Store
	descriptors *activator.Descriptors
	activator   *activator.Activator
	controller  supervisor.Controller
	health      HealthChecker
	provisioner builder.Provisioner
	collector   *retention.Collector
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithController replaces the supervisor backend.
func WithController(controller supervisor.Controller) Option {
	return func(m *Manager) {
		m.controller = controller
	}
}

// WithHealthChecker replaces the health probe.
func WithHealthChecker(health HealthChecker) Option {
	return func(m *Manager) {
		m.health = health
	}
}

// WithProvisioner replaces the runtime provisioner. nil disables it.
func WithProvisioner(provisioner builder.Provisioner) Option {
	return func(m *Manager) {
		m.provisioner = provisioner
	}
}

// WithPointerStore replaces the pointer store.
func WithPointerStore(store pointer.Store) Option {
	return func(m *Manager) {
		m.pointers = store
	}
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(fetcher *download.Fetcher) Option {
	return func(m *Manager) {
		m.fetcher = fetcher
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New builds a manager from a validated configuration.
func New(cfg *config.Config, opts ...Option) *Manager {
	runner := command.ExecRunner{}

	m := &Manager{
		cfg: cfg,
		fetcher: download.NewFetcher(
			download.WithTimeout(cfg.Download.Timeout),
			download.WithAttempts(cfg.Download.Retries),
			download.WithBackoff(cfg.Download.Backoff),
		),
		pointers:    pointer.NewSymlinkStore(cfg.Root),
		descriptors: activator.NewDescriptors(cfg),
		controller:  supervisor.New(cfg.Service, runner),
		health:      probe.New(cfg.Health, probe.SocketDialer(cfg.Health)),
		provisioner: builder.NewVenvProvisioner(cfg.Runtime, runner),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.activator = activator.New(m.pointers, m.descriptors)
	m.collector = retention.New(m.releasesDir(), m.pointers)

	return m
}

func (m *Manager) releasesDir() string {
	return filepath.Join(m.cfg.Root, release.ReleasesDirName)
}

func (m *Manager) cacheDir() string {
	return filepath.Join(m.cfg.Root, release.CacheDirName)
}

// localDataDirs lists where trusted local data assets are looked up.
func (m *Manager) localDataDirs() []string {
	if !m.cfg.LocalAllowed() {
		return nil
	}

	dirs := make([]string, 0, len(m.cfg.Install.DataDirs))

	for _, dir := range m.cfg.Install.DataDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(m.cfg.Install.SourceDir, dir)
		}

		dirs = append(dirs, dir)
	}

	return dirs
}

// withLock runs fn while holding the root lock.
func (m *Manager) withLock(fn func() error) error {
	held, err := lock.Acquire(m.cfg.Root)
	if err != nil {
		return err
	}

	defer func() {
		_ = held.Release()
	}()

	return fn()
}
