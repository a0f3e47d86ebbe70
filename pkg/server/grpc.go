package server

import (
	"context"
	"fmt"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server exposing only the standard health service.
// Services flip their status to SERVING once their consumers are running.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewHealthServer(reg prometheus.Registerer, logger *zap.Logger) *HealthServer {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)

	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)

	grpc_prometheus.EnableHandlingTimeHistogram()
	if reg != nil {
		if err := reg.Register(grpc_prometheus.DefaultServerMetrics); err != nil {
			logger.Warn("gRPC metrics already registered", zap.Error(err))
		}
	}
	grpc_prometheus.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{server: s, health: h, logger: logger}
}

func (s *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus(service, status)
}

// Serve blocks until ctx is done, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC health server listening", zap.String("addr", addr))
		errCh <- s.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		s.logger.Info("gRPC server stopped")

		return nil
	case err := <-errCh:
		return err
	}
}
