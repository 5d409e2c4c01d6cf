package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/service/common"
)

var errNoSamples = errors.New("probe needs two sample inputs")

// IPC is the part of the backend client the probe uses.
type IPC interface {
	Ready(ctx context.Context) error
	Translate(ctx context.Context, text string) (string, error)
	Status(ctx context.Context) (*structpb.Struct, error)
	Close() error
}

// Dialer opens an IPC client.
type Dialer func(ctx context.Context) (IPC, error)

// SocketDialer dials the backend socket from the health settings.
func SocketDialer(cfg config.HealthConfig) Dialer {
	return func(ctx context.Context) (IPC, error) {
		opts := []common.Option{common.WithCallTimeout(cfg.CallTimeout)}
		if caller, err := common.DetectCaller(); err == nil {
			opts = append(opts, common.WithCaller(caller))
		}

		client, err := common.Dial(ctx, cfg.Socket, opts...)
		if err != nil {
			return nil, err
		}

		return client, nil
	}
}

// Probe runs the health check sequence.
type Probe struct {
	cfg  config.HealthConfig
	dial Dialer
}

// New returns a probe using dial to reach the backend.
func New(cfg config.HealthConfig, dial Dialer) *Probe {
	return &Probe{
		cfg:  cfg,
		dial: dial,
	}
}

// Run waits for the endpoint, then calls Translate with both samples and
// GetStatus. A missed readiness deadline is release.ErrHealthCheckTimeout;
// any failed call is release.ErrHealthCheckFailed.
func (p *Probe) Run(ctx context.Context) error {
	if len(p.cfg.Samples) < 2 {
		return fmt.Errorf("%w: %w", release.ErrHealthCheckFailed, errNoSamples)
	}

	ctx = logger.WithName(ctx, "probe")

	client, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", release.ErrHealthCheckFailed, err)
	}

	defer func() {
		_ = client.Close()
	}()

	if err = p.waitReady(ctx, client); err != nil {
		return err
	}

	calls := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{
			name: "translate " + p.cfg.Samples[0],
			call: func(ctx context.Context) error {
				_, err := client.Translate(ctx, p.cfg.Samples[0])
				return err
			},
		},
		{
			name: "translate " + p.cfg.Samples[1],
			call: func(ctx context.Context) error {
				_, err := client.Translate(ctx, p.cfg.Samples[1])
				return err
			},
		},
		{
			name: "status",
			call: func(ctx context.Context) error {
				_, err := client.Status(ctx)
				return err
			},
		},
	}

	for _, c := range calls {
		if err = c.call(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", release.ErrHealthCheckFailed, c.name, err)
		}

		logger.DebugKV(ctx, "Probe call succeeded", "call", c.name)
	}

	logger.Info(ctx, "Health check passed")

	return nil
}

// waitReady polls Ready every poll interval until the ready timeout.
func (p *Probe) waitReady(ctx context.Context, client IPC) error {
	deadline := time.Now().Add(p.cfg.ReadyTimeout)

	for attempt := 1; ; attempt++ {
		err := client.Ready(ctx)
		if err == nil {
			logger.DebugKV(ctx, "Endpoint ready", "attempt", attempt)
			return nil
		}

		if time.Now().Add(p.cfg.PollInterval).After(deadline) {
			return fmt.Errorf("%w: %s after %d attempts: %w", release.ErrHealthCheckTimeout, p.cfg.ReadyTimeout, attempt, err)
		}

		logger.DebugKV(ctx, "Endpoint not ready yet", "attempt", attempt, "error", err)

		timer := time.NewTimer(p.cfg.PollInterval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return fmt.Errorf("%w: %w", release.ErrHealthCheckTimeout, ctx.Err())
		case <-timer.C:
		}
	}
}
