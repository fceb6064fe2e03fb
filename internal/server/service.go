package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the full name of the checkpoint gRPC service.
const ServiceName = "checkpoint.v1.CheckpointService"

// Full method names, for clients invoking the service directly.
const (
	CaptureMethod = "/" + ServiceName + "/Capture"
	GetMethod     = "/" + ServiceName + "/Get"
	ListMethod    = "/" + ServiceName + "/List"
)

// Metadata keys set on Capture responses.
const (
	SequenceHeader = "checkpoint-sequence"
	IDHeader       = "checkpoint-id"
)

// CheckpointServiceServer is the server API of the checkpoint service. The
// messages are protobuf well-known wrappers:
//
//	Capture(UInt32Value kind) returns (BytesValue checkpoint)
//	Get(StringValue id) returns (BytesValue checkpoint)
//	List(Empty) returns (StringValue newline separated ids)
type CheckpointServiceServer interface {
	Capture(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	List(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv CheckpointServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func captureHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckpointServiceServer).Capture(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CaptureMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckpointServiceServer).Capture(ctx, req.(*wrapperspb.UInt32Value))
	})
}

func getHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckpointServiceServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckpointServiceServer).Get(ctx, req.(*wrapperspb.StringValue))
	})
}

func listHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckpointServiceServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckpointServiceServer).List(ctx, req.(*emptypb.Empty))
	})
}

// ServiceDesc describes the checkpoint service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CheckpointServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Capture", Handler: captureHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "List", Handler: listHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkpoint/v1/checkpoint.proto",
}
