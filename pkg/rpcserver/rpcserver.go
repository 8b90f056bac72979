// Package rpcserver exposes Core's readiness over the standardized gRPC
// Health service (grpc.health.v1), per spec.md §4.8: readiness verifies
// Core via this service with service="" and expects SERVING, driven by
// a periodic probe against the primary store rather than a hand-rolled
// health RPC or protobuf surface of our own.
package rpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is the liveness probe against the primary store (pkg/storage.Store
// satisfies this structurally).
type Pinger interface {
	Ping() error
}

// Server runs the gRPC health service and drives its serving status
// from a periodic Pinger probe.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	pinger     Pinger
	log        *zap.SugaredLogger
}

func New(pinger Pinger, log *zap.SugaredLogger) *Server {
	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		pinger:     pinger,
		log:        log,
	}
}

// Serve listens on addr and blocks until the listener or grpc.Server
// stops. Intended to run in its own goroutine.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.grpcServer.Serve(lis)
}

// RunProbe periodically pings the primary store and updates the overall
// ("" service) health status accordingly, until ctx is cancelled.
func (s *Server) RunProbe(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.probeOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeOnce()
		}
	}
}

func (s *Server) probeOnce() {
	if err := s.pinger.Ping(); err != nil {
		s.log.Warnw("store ping failed, reporting NOT_SERVING", "error", err)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// GracefulStop drains in-flight RPCs and stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}
