package main

import (
	"context"
	"time"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/protocol"
	"github.com/srand/fleet/pkg/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func NewSchedulerConn() *grpc.ClientConn {
	grpcHost, err := utils.ParseGrpcUrl(configData.SchedulerUri)
	if err != nil {
		log.Fatal(err)
	}

	opts := append(configData.Grpc.ToDialOptions(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	conn, err := grpc.NewClient(grpcHost, opts...)
	if err != nil {
		log.Fatal(err)
	}

	return conn
}

// Calls an administration method, exiting on failure.
func adminCall(method string, req, resp any) {
	ctx, cancel := DefaultDeadlineContext()
	defer cancel()

	conn := NewSchedulerConn()
	defer conn.Close()

	err := protocol.Invoke(ctx, conn, protocol.AdministrationService, method, req, resp)
	if err != nil {
		log.Fatal(utils.FromGrpcError(err))
	}
}

func DefaultDeadlineContext() (context.Context, func()) {
	return context.WithDeadline(context.Background(), time.Now().Add(time.Second*30))
}
