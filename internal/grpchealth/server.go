// Package grpchealth exposes the grpc.health.v1 service with a status that
// follows the reachability of the record store.
package grpchealth

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/scenecheck/internal/logging"
)

// ServiceName is the service reported alongside the overall ("") status.
const ServiceName = "scenecheck.Validation"

const pingTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a gRPC server carrying only the health service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	pinger     Pinger
	interval   time.Duration
	logger     *zap.Logger
}

// NewServer registers the health service. Status starts as NOT_SERVING until
// the first successful ping.
func NewServer(pinger Pinger, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		grpcServer: gs,
		health:     hs,
		pinger:     pinger,
		interval:   interval,
		logger:     logger.Named("grpc_health"),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Check pings the store once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		wrapped := logging.NewOperationError("grpchealth.check", "", err)
		s.logger.Warn("record store unreachable", logging.ErrorFields(wrapped)...)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.setStatus(status)
	return status
}

// Watch re-checks on every interval until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
