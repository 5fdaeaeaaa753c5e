package main

import (
	"fmt"
	"net"
	"net/url"

	"github.com/srand/fleet/pkg/log"
	"github.com/srand/fleet/pkg/scheduler"
	"google.golang.org/grpc"
)

// Sets up a gRPC server on a specific listening address and starts it.
func serveGrpc(sched scheduler.Scheduler, address string) {
	uri, err := url.Parse(address)
	if err != nil {
		log.Fatal(err)
	}

	host := uri.Host

	switch uri.Scheme {
	case "tcp", "tcp4", "tcp6":
		if uri.Port() == "" {
			host = fmt.Sprintf("%s:9090", uri.Host)
		}
	case "unix":
		host = uri.Path
	default:
		log.Fatalf("Unsupported protocol: %s", uri.Scheme)
	}

	socket, err := net.Listen(uri.Scheme, host)
	if err != nil {
		log.Fatal(err)
	}

	if uri.Scheme == "unix" {
		socket.(*net.UnixListener).SetUnlinkOnClose(true)
		log.Info("Listening on", uri.Scheme, uri.Path)
	} else {
		log.Info("Listening on", uri.Scheme, socket.Addr())
	}

	server := grpc.NewServer(config.GRPCOptions.ToServerOptions()...)
	scheduler.RegisterWorkerService(server, sched)
	scheduler.RegisterAdministrationService(server, sched)
	if err := server.Serve(socket); err != nil {
		log.Fatal(err)
	}
}
