package server

import (
	"auction-engine/utils"
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported through the gRPC health service
const ServiceName = "auction.engine"

// NewGRPCServer returns a gRPC server exposing the standard health service.
// Both the empty service and ServiceName start as SERVING.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// GRPCRunner serves a gRPC server as an ifrit member. On signal it marks
// itself not serving and stops gracefully.
type GRPCRunner struct {
	Addr     string
	Listener net.Listener
	Server   *grpc.Server
	Health   *health.Server
}

func (r *GRPCRunner) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	lis := r.Listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", r.Addr)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Server.Serve(lis)
	}()

	utils.Info("gRPC health service listening", map[string]any{"addr": lis.Addr().String()})
	close(ready)

	select {
	case <-signals:
		if r.Health != nil {
			r.Health.Shutdown()
		}
		r.Server.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
