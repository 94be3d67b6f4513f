package svc

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/antigravity/cogmem/internal/analytics"
	"github.com/antigravity/cogmem/internal/memory"
	"github.com/antigravity/cogmem/internal/workflow"
)

// Server bundles the gRPC and HTTP listeners the daemon runs side by
// side, grounded on cmd/server/main.go's "gRPC in one goroutine, HTTP
// mux in another" bootstrap.
type Server struct {
	GRPCPort int
	HTTPPort int
	Logger   *zap.SugaredLogger

	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
}

// New builds a Server exposing MemoryService and the analytics Service.
// wf may be nil, in which case the /analytics/source/workflow route is
// disabled but everything else still works.
func New(mem *memory.MemoryService, an *analytics.Service, wf *workflow.Engine, grpcPort, httpPort int, logger *zap.SugaredLogger) *Server {
	grpcServer := grpc.NewServer(unaryInterceptorChain(logger))

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	httpHandler := NewHTTPHandler(mem, an, wf, logger)

	return &Server{
		GRPCPort:   grpcPort,
		HTTPPort:   httpPort,
		Logger:     logger,
		grpcServer: grpcServer,
		httpServer: &http.Server{Handler: httpHandler.Mux()},
		health:     healthSrv,
	}
}

// Run starts both listeners and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)

	go func() {
		s.Logger.Infow("grpc server listening", "port", s.GRPCPort)
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	go func() {
		s.httpServer.Addr = fmt.Sprintf(":%d", s.HTTPPort)
		s.Logger.Infow("http server listening", "port", s.HTTPPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	select {
	case <-ctx.Done():
		s.Logger.Info("shutting down servers")
		s.grpcServer.GracefulStop()
		_ = s.httpServer.Shutdown(context.Background())
		return nil
	case err := <-errCh:
		return err
	}
}
