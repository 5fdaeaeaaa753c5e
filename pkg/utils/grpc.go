package utils

import (
	"math"
	"strconv"
	"time"

	"github.com/srand/fleet/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

type GRPCOptions struct {
	// The interval between PING frames.
	KeepAliveTime *time.Duration `mapstructure:"keep_alive_time"`
	// The timeout for a PING frame to be acknowledged.
	KeepAliveTimeout *time.Duration `mapstructure:"keep_alive_timeout"`
	// Send keepalive pings even if there are no active streams (client).
	KeepAliveWithoutCalls *bool `mapstructure:"keep_alive_without_calls"`
	// Are clients allowed to send keepalive pings without active streams (server).
	PermitKeepAliveWithoutCalls *bool `mapstructure:"permit_keep_alive_without_calls"`
	// Minimum allowed time between a server receiving successive ping frames without sending any data/header frame.
	PermitKeepAliveTime *time.Duration `mapstructure:"permit_keep_alive_time"`
	// Maximum number of requests served concurrently per connection (server).
	MaxConcurrentStreams *uint32 `mapstructure:"max_concurrent_streams"`
	// Number of goroutines kept around to serve requests (server).
	// Zero lets gRPC spawn one goroutine per request.
	ServerWorkers *uint32 `mapstructure:"server_workers"`
	// Largest message accepted or sent, for example "16MiB".
	MaxMessageSize string `mapstructure:"max_message_size"`
}

// Returns the configured message size limit, or zero if unset.
func (o *GRPCOptions) messageSize() int {
	if o.MaxMessageSize == "" {
		return 0
	}
	size, err := ParseSize(o.MaxMessageSize)
	if err != nil || size <= 0 || size > math.MaxInt32 {
		log.Warnf("Ignoring invalid gRPC max_message_size %q", o.MaxMessageSize)
		return 0
	}
	return int(size)
}

func (o *GRPCOptions) ToServerOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{}

	if o.KeepAliveTime != nil || o.KeepAliveTimeout != nil {
		params := keepalive.ServerParameters{}
		if o.KeepAliveTime != nil {
			params.Time = *o.KeepAliveTime
		}
		if o.KeepAliveTimeout != nil {
			params.Timeout = *o.KeepAliveTimeout
		}
		opts = append(opts, grpc.KeepaliveParams(params))
	}

	if o.PermitKeepAliveWithoutCalls != nil || o.PermitKeepAliveTime != nil {
		policy := keepalive.EnforcementPolicy{}
		if o.PermitKeepAliveWithoutCalls != nil {
			policy.PermitWithoutStream = *o.PermitKeepAliveWithoutCalls
		}
		if o.PermitKeepAliveTime != nil {
			policy.MinTime = *o.PermitKeepAliveTime
		}
		opts = append(opts, grpc.KeepaliveEnforcementPolicy(policy))
	}

	if o.MaxConcurrentStreams != nil {
		opts = append(opts, grpc.MaxConcurrentStreams(*o.MaxConcurrentStreams))
	}

	if o.ServerWorkers != nil && *o.ServerWorkers > 0 {
		opts = append(opts, grpc.NumStreamWorkers(*o.ServerWorkers))
	}

	if size := o.messageSize(); size > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(size), grpc.MaxSendMsgSize(size))
	}

	return opts
}

func (o *GRPCOptions) ToDialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{}

	if size := o.messageSize(); size > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(size), grpc.MaxCallSendMsgSize(size)))
	}

	if o.KeepAliveTime == nil && o.KeepAliveTimeout == nil && o.KeepAliveWithoutCalls == nil {
		return opts
	}

	params := keepalive.ClientParameters{}
	if o.KeepAliveTime != nil {
		params.Time = *o.KeepAliveTime
	}
	if o.KeepAliveTimeout != nil {
		params.Timeout = *o.KeepAliveTimeout
	}
	if o.KeepAliveWithoutCalls != nil {
		params.PermitWithoutStream = *o.KeepAliveWithoutCalls
	}

	return append(opts, grpc.WithKeepaliveParams(params))
}

func (o *GRPCOptions) Log() {
	values := []struct {
		key   string
		value any
	}{
		{"keep_alive_time", o.KeepAliveTime},
		{"keep_alive_timeout", o.KeepAliveTimeout},
		{"keep_alive_without_calls", o.KeepAliveWithoutCalls},
		{"permit_keep_alive_without_calls", o.PermitKeepAliveWithoutCalls},
		{"permit_keep_alive_time", o.PermitKeepAliveTime},
		{"max_concurrent_streams", o.MaxConcurrentStreams},
		{"server_workers", o.ServerWorkers},
		{"max_message_size", o.MaxMessageSize},
	}

	header := false
	for _, v := range values {
		text := optionString(v.value)
		if text == "" {
			continue
		}
		if !header {
			log.Info("  gRPC options:")
			header = true
		}
		log.Infof("    %s = %s", v.key, text)
	}
}

func optionString(v any) string {
	switch p := v.(type) {
	case *time.Duration:
		if p != nil {
			return p.String()
		}
	case *bool:
		if p != nil {
			if *p {
				return "true"
			}
			return "false"
		}
	case string:
		return p
	case *uint32:
		if p != nil {
			return strconv.FormatUint(uint64(*p), 10)
		}
	}
	return ""
}
