package protocol

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC services. Requests and responses travel as google.protobuf.Struct
// holding the JSON form of the message types in this package; calls
// without a response return google.protobuf.Empty.
const (
	WorkerService         = "fleet.Worker"
	AdministrationService = "fleet.Administration"
)

// Worker service methods.
const (
	MethodRequestTask = "RequestTask"
	MethodUpdateTask  = "UpdateTask"
	MethodBeat        = "Beat"
	MethodFailedTask  = "FailedTask"
	MethodStopRun     = "StopRun"
	MethodRequestSpsa = "RequestSpsa"
)

// Administration service methods.
const (
	MethodGetRun     = "GetRun"
	MethodListRuns   = "ListRuns"
	MethodGetElo     = "GetElo"
	MethodCreateRun  = "CreateRun"
	MethodPauseRun   = "PauseRun"
	MethodResumeRun  = "ResumeRun"
	MethodFinishRun  = "FinishRun"
	MethodListWorker = "ListWorkers"
)

func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Request of administration calls addressing a single run.
type RunRequest struct {
	RunId  string `json:"run_id"`
	Reason string `json:"reason,omitempty"`
}

type ListRunsRequest struct {
	Status RunStatus `json:"status,omitempty"`
}

// ToStruct converts a message to its protobuf envelope.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FromStruct converts a protobuf envelope back into a message.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Invoke calls a method and decodes the response into resp.
// A nil resp expects an empty response.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, req, resp any) error {
	in, err := ToStruct(req)
	if err != nil {
		return err
	}

	if resp == nil {
		return conn.Invoke(ctx, FullMethod(service, method), in, &emptypb.Empty{})
	}

	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, FullMethod(service, method), in, out); err != nil {
		return err
	}
	return FromStruct(out, resp)
}
