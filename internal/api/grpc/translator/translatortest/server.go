package translatortest

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/translator-release/internal/api/grpc/translator"
)

// Backend abstracts the translation engine behind the transport.
type Backend interface {
	Translate(ctx context.Context, text string) (string, error)
	Status(ctx context.Context) (map[string]any, error)
}

// Server implements the Translator gRPC API.
type Server struct {
	// backend does the actual work.
	backend Backend
}

// NewServer wires backend into a gRPC handler.
func NewServer(backend Backend) *Server {
	return &Server{
		backend: backend,
	}
}

// Translate translates the request text.
func (s *Server) Translate(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}

	translated, err := s.backend.Translate(ctx, req.GetValue())
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to translate")
	}

	return wrapperspb.String(translated), nil
}

// GetStatus reports backend status fields.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	fields, err := s.backend.Status(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, "status unavailable")
	}

	result, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode status")
	}

	return result, nil
}

// Serve runs the Translator and health services on lis until ctx is done.
func Serve(ctx context.Context, lis net.Listener, backend Backend) error {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()

	translator.Register(grpcServer, NewServer(backend))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(translator.ServiceName, healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 1)

	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}

		return err
	}
}
