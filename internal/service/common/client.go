//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/translator-release/internal/api/grpc/translator"
	"github.com/oshokin/translator-release/internal/version"
)

const (
	// defaultCallTimeout bounds calls when no timeout is configured.
	defaultCallTimeout = 5 * time.Second

	reconnectBaseDelay = 100 * time.Millisecond
	reconnectMaxDelay  = time.Second
)

// Client talks to the translator backend over its unix socket.
type Client struct {
	// conn is the underlying gRPC connection to the backend.
	conn *grpc.ClientConn
	// health is the standard health service client.
	health healthpb.HealthClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// caller is attached to every call when set.
	caller metadata.MD
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithCaller attaches caller identity to every call.
func WithCaller(caller Caller) Option {
	return func(c *Client) {
		c.caller = caller.Metadata()
	}
}

var (
	// errSocketRequired is returned when the socket path is missing.
	errSocketRequired = errors.New("socket path must be provided")
	// errNotServing is returned when the health service reports anything but SERVING.
	errNotServing = errors.New("backend is not serving")
)

// Dial prepares a connection to the backend listening on socket. The
// connection is established lazily, so Dial succeeds before the backend is up.
func Dial(_ context.Context, socket string, opts ...Option) (*Client, error) {
	if socket == "" {
		return nil, errSocketRequired
	}

	absolute, err := filepath.Abs(socket)
	if err != nil {
		return nil, fmt.Errorf("resolve socket path: %w", err)
	}

	// The backend restarts right before it is probed, so reconnect quickly.
	connectParams := grpc.ConnectParams{
		Backoff: backoff.Config{
			BaseDelay:  reconnectBaseDelay,
			Multiplier: backoff.DefaultConfig.Multiplier,
			Jitter:     backoff.DefaultConfig.Jitter,
			MaxDelay:   reconnectMaxDelay,
		},
		MinConnectTimeout: reconnectMaxDelay,
	}

	conn, err := grpc.NewClient("unix://"+absolute,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent()),
		grpc.WithConnectParams(connectParams),
	)
	if err != nil {
		return nil, fmt.Errorf("dial translator backend: %w", err)
	}

	client := &Client{
		conn:        conn,
		health:      healthpb.NewHealthClient(conn),
		callTimeout: defaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Ready checks that the endpoint is bound and serving. A backend without
// the health service counts as ready once it answers at all.
func (c *Client) Ready(ctx context.Context) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.health.Check(callCtx, &healthpb.HealthCheckRequest{})
	if status.Code(err) == codes.Unimplemented {
		return nil
	}

	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}

	return nil
}

// Translate calls the primary function of the backend.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(callCtx, translator.TranslateMethod, wrapperspb.String(text), resp); err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}

	return resp.GetValue(), nil
}

// Status calls the status function of the backend.
func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, translator.GetStatusMethod, &emptypb.Empty{}, resp); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	return resp, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.caller != nil {
		ctx = metadata.NewOutgoingContext(ctx, c.caller)
	}

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
