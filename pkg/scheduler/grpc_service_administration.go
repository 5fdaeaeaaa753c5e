package scheduler

import (
	"context"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/run"
	"google.golang.org/grpc"
)

type runsResponse struct {
	Runs []*run.Run `json:"runs"`
}

type workersResponse struct {
	Workers []protocol.WorkerStatus `json:"workers"`
}

var administrationServiceDesc = grpc.ServiceDesc{
	ServiceName: protocol.AdministrationService,
	HandlerType: (*Scheduler)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(protocol.AdministrationService, protocol.MethodGetRun, func(s Scheduler, ctx context.Context, req *protocol.RunRequest) (*run.Run, error) {
			return s.GetRun(ctx, req.RunId)
		}),
		unaryMethod(protocol.AdministrationService, protocol.MethodListRuns, func(s Scheduler, ctx context.Context, req *protocol.ListRunsRequest) (*runsResponse, error) {
			runs, err := s.ListRuns(ctx, req.Status)
			if err != nil {
				return nil, err
			}
			return &runsResponse{Runs: runs}, nil
		}),
		unaryMethod(protocol.AdministrationService, protocol.MethodGetElo, func(s Scheduler, ctx context.Context, req *protocol.RunRequest) (*protocol.EloResponse, error) {
			return s.GetElo(ctx, req.RunId)
		}),
		unaryMethod(protocol.AdministrationService, protocol.MethodCreateRun, func(s Scheduler, ctx context.Context, req *run.Args) (*run.Run, error) {
			return s.CreateRun(ctx, *req)
		}),
		ackMethod(protocol.AdministrationService, protocol.MethodPauseRun, func(s Scheduler, ctx context.Context, req *protocol.RunRequest) error {
			return s.PauseRun(ctx, req.RunId)
		}),
		ackMethod(protocol.AdministrationService, protocol.MethodResumeRun, func(s Scheduler, ctx context.Context, req *protocol.RunRequest) error {
			return s.ResumeRun(ctx, req.RunId)
		}),
		ackMethod(protocol.AdministrationService, protocol.MethodFinishRun, func(s Scheduler, ctx context.Context, req *protocol.RunRequest) error {
			return s.FinishRun(ctx, req.RunId, req.Reason)
		}),
		unaryMethod(protocol.AdministrationService, protocol.MethodListWorker, func(s Scheduler, ctx context.Context, req *struct{}) (*workersResponse, error) {
			return &workersResponse{Workers: s.Workers()}, nil
		}),
	},
	Metadata: "fleet/administration",
}

// Registers the administration service of the scheduler with a gRPC server.
func RegisterAdministrationService(server grpc.ServiceRegistrar, scheduler Scheduler) {
	server.RegisterService(&administrationServiceDesc, scheduler)
}
