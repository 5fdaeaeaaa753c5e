package scheduler

import (
	"context"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Describes a unary method. The request envelope is decoded into Req and
// the value returned by call is encoded into the response envelope.
func unaryMethod[Req, Resp any](service, name string, call func(Scheduler, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return methodDesc(service, name, func(s Scheduler, ctx context.Context, req *Req) (proto.Message, error) {
		resp, err := call(s, ctx, req)
		if err != nil {
			return nil, err
		}
		return protocol.ToStruct(resp)
	})
}

// Describes a unary method acknowledged with an empty response.
func ackMethod[Req any](service, name string, call func(Scheduler, context.Context, *Req) error) grpc.MethodDesc {
	return methodDesc(service, name, func(s Scheduler, ctx context.Context, req *Req) (proto.Message, error) {
		if err := call(s, ctx, req); err != nil {
			return nil, err
		}
		return &emptypb.Empty{}, nil
	})
}

func methodDesc[Req any](service, name string, call func(Scheduler, context.Context, *Req) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, msg any) (any, error) {
				var req Req
				if err := protocol.FromStruct(msg.(*structpb.Struct), &req); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}

				resp, err := call(srv.(Scheduler), ctx, &req)
				if err != nil {
					log.Tracef("%s/%s: %v", service, name, err)
					return nil, utils.GrpcError(err)
				}
				return resp, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: protocol.FullMethod(service, name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: protocol.WorkerService,
	HandlerType: (*Scheduler)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(protocol.WorkerService, protocol.MethodRequestTask, func(s Scheduler, ctx context.Context, req *protocol.TaskRequest) (*protocol.TaskAssignment, error) {
			return s.RequestTask(ctx, *req)
		}),
		unaryMethod(protocol.WorkerService, protocol.MethodUpdateTask, func(s Scheduler, ctx context.Context, req *protocol.UpdateTaskRequest) (*protocol.UpdateTaskResponse, error) {
			return s.UpdateTask(ctx, *req)
		}),
		ackMethod(protocol.WorkerService, protocol.MethodBeat, func(s Scheduler, ctx context.Context, req *protocol.BeatRequest) error {
			return s.Beat(ctx, *req)
		}),
		ackMethod(protocol.WorkerService, protocol.MethodFailedTask, func(s Scheduler, ctx context.Context, req *protocol.FailedTaskRequest) error {
			return s.FailedTask(ctx, *req)
		}),
		ackMethod(protocol.WorkerService, protocol.MethodStopRun, func(s Scheduler, ctx context.Context, req *protocol.StopRunRequest) error {
			return s.StopRun(ctx, *req)
		}),
		unaryMethod(protocol.WorkerService, protocol.MethodRequestSpsa, func(s Scheduler, ctx context.Context, req *protocol.SpsaRequest) (*protocol.SpsaAssignment, error) {
			return s.RequestSpsa(ctx, *req)
		}),
	},
	Metadata: "fleet/worker",
}

// Registers the worker service of the scheduler with a gRPC server.
func RegisterWorkerService(server grpc.ServiceRegistrar, scheduler Scheduler) {
	server.RegisterService(&workerServiceDesc, scheduler)
}
