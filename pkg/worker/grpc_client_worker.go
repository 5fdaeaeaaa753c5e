package worker

import (
	"context"

	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Worker side of the scheduler protocol.
type Client interface {
	RequestTask(ctx context.Context, req protocol.TaskRequest) (*protocol.TaskAssignment, error)
	UpdateTask(ctx context.Context, req protocol.UpdateTaskRequest) (*protocol.UpdateTaskResponse, error)
	Beat(ctx context.Context, req protocol.BeatRequest) error
	FailedTask(ctx context.Context, req protocol.FailedTaskRequest) error
	StopRun(ctx context.Context, req protocol.StopRunRequest) error
	RequestSpsa(ctx context.Context, req protocol.SpsaRequest) (*protocol.SpsaAssignment, error)
}

type grpcClient struct {
	conn grpc.ClientConnInterface
}

// Connects to the scheduler configured for the worker.
func NewWorkerClient(config *WorkerConfig) (Client, *grpc.ClientConn, error) {
	grpcUri, err := utils.ParseGrpcUrl(config.SchedulerGrpcUri)
	if err != nil {
		return nil, nil, err
	}

	opts := append(config.Grpc.ToDialOptions(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	conn, err := grpc.NewClient(grpcUri, opts...)
	if err != nil {
		return nil, nil, err
	}

	return NewClient(conn), conn, nil
}

// Wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) Client {
	return &grpcClient{conn: conn}
}

func (c *grpcClient) invoke(ctx context.Context, method string, req, resp any) error {
	err := protocol.Invoke(ctx, c.conn, protocol.WorkerService, method, req, resp)
	return utils.FromGrpcError(err)
}

func (c *grpcClient) RequestTask(ctx context.Context, req protocol.TaskRequest) (*protocol.TaskAssignment, error) {
	resp := &protocol.TaskAssignment{}
	if err := c.invoke(ctx, protocol.MethodRequestTask, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcClient) UpdateTask(ctx context.Context, req protocol.UpdateTaskRequest) (*protocol.UpdateTaskResponse, error) {
	resp := &protocol.UpdateTaskResponse{}
	if err := c.invoke(ctx, protocol.MethodUpdateTask, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *grpcClient) Beat(ctx context.Context, req protocol.BeatRequest) error {
	return c.invoke(ctx, protocol.MethodBeat, req, nil)
}

func (c *grpcClient) FailedTask(ctx context.Context, req protocol.FailedTaskRequest) error {
	return c.invoke(ctx, protocol.MethodFailedTask, req, nil)
}

func (c *grpcClient) StopRun(ctx context.Context, req protocol.StopRunRequest) error {
	return c.invoke(ctx, protocol.MethodStopRun, req, nil)
}

func (c *grpcClient) RequestSpsa(ctx context.Context, req protocol.SpsaRequest) (*protocol.SpsaAssignment, error) {
	resp := &protocol.SpsaAssignment{}
	if err := c.invoke(ctx, protocol.MethodRequestSpsa, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
