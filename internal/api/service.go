package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProcessEventMethod is the fully qualified gRPC method name.
const ProcessEventMethod = "/noc.v1.NOCAgent/ProcessEvent"

// NOCAgentServer is the server API for the noc.v1.NOCAgent service.
// Events and results travel as google.protobuf.Struct.
type NOCAgentServer interface {
	ProcessEvent(ctx context.Context, event *structpb.Struct) (*structpb.Struct, error)
}

// RegisterNOCAgentServer registers srv on s.
func RegisterNOCAgentServer(s grpc.ServiceRegistrar, srv NOCAgentServer) {
	s.RegisterService(&NOCAgentServiceDesc, srv)
}

func processEventHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NOCAgentServer).ProcessEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ProcessEventMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NOCAgentServer).ProcessEvent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// NOCAgentServiceDesc describes the noc.v1.NOCAgent service.
var NOCAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: "noc.v1.NOCAgent",
	HandlerType: (*NOCAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProcessEvent",
			Handler:    processEventHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "noc/v1/noc.proto",
}

// ProcessEvent invokes the ProcessEvent RPC over conn.
func ProcessEvent(ctx context.Context, conn grpc.ClientConnInterface, event *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, ProcessEventMethod, event, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
