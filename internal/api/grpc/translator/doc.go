// Package translator describes the IPC contract of the translator backend.
//
// The backend exposes translator.v1.Translator over gRPC on a unix socket,
// built from well-known protobuf types so no generated code is needed:
//
//	Translate(google.protobuf.StringValue) returns (google.protobuf.StringValue)
//	GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct)
//
// plus the standard grpc.health.v1.Health service.
package translator
