package translator

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service and method names of the contract.
const (
	ServiceName     = "translator.v1.Translator"
	TranslateMethod = "/" + ServiceName + "/Translate"
	GetStatusMethod = "/" + ServiceName + "/GetStatus"
)

// TranslatorServer is the server API of the contract.
type TranslatorServer interface {
	Translate(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc is the grpc.ServiceDesc for translator.v1.Translator.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranslatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Translate",
			Handler:    translateHandler,
		},
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "translator/v1/translator.proto",
}

// Register adds srv to registrar.
func Register(registrar grpc.ServiceRegistrar, srv TranslatorServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func translateHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	server, _ := srv.(TranslatorServer)
	if interceptor == nil {
		return server.Translate(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: TranslateMethod,
	}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		value, _ := req.(*wrapperspb.StringValue)

		return server.Translate(ctx, value)
	})
}

func getStatusHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	server, _ := srv.(TranslatorServer)
	if interceptor == nil {
		return server.GetStatus(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetStatusMethod,
	}

	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		empty, _ := req.(*emptypb.Empty)

		return server.GetStatus(ctx, empty)
	})
}
