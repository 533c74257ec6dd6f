package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	pkggrpc "github.com/0xsj/overwatch-pkg/grpc"
	"github.com/0xsj/overwatch-pkg/log"

	"github.com/0xsj/overwatch-revocation/internal/app/service"
	"github.com/0xsj/overwatch-revocation/internal/port/inbound/query"
)

// HealthService is the name reported to gRPC health checks.
const HealthService = "revocation"

// ServerConfig holds configuration for the revocation gRPC server.
type ServerConfig struct {
	Host              string
	Port              int
	EnableReflection  bool
	EnableHealthCheck bool
}

// Address returns the server address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Service is a gRPC service served behind the revocation-aware interceptors.
type Service struct {
	Desc *grpc.ServiceDesc
	Impl any
}

// Server wraps the pkg grpc.Server. Every call except health checks is
// authenticated and checked against the revocation registry.
type Server struct {
	server   *pkggrpc.Server
	services []Service
	logger   log.Logger
}

// NewServer creates a new revocation-aware gRPC server.
func NewServer(
	cfg ServerConfig,
	verifier service.TokenVerifier,
	revocations query.IsTokenRevokedHandler,
	logger log.Logger,
	services ...Service,
) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	// Build interceptor chains with correct order
	unaryInterceptors := BuildUnaryInterceptors(logger, verifier, revocations)
	streamInterceptors := BuildStreamInterceptors(logger, verifier, revocations)

	server, err := pkggrpc.NewServer(
		pkggrpc.WithServerAddress(cfg.Address()),
		pkggrpc.WithServerLogger(logger),
		pkggrpc.WithServerReflection(cfg.EnableReflection),
		pkggrpc.WithServerHealthCheck(cfg.EnableHealthCheck),
		pkggrpc.WithUnaryInterceptors(unaryInterceptors...),
		pkggrpc.WithStreamInterceptors(streamInterceptors...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc server: %w", err)
	}

	return &Server{
		server:   server,
		services: services,
		logger:   logger,
	}, nil
}

// RegisterServices registers the configured services with the gRPC server.
func (s *Server) RegisterServices() {
	for _, svc := range s.services {
		s.server.RegisterService(svc.Desc, svc.Impl)
	}
}

// Start starts the gRPC server.
func (s *Server) Start(ctx context.Context) error {
	s.RegisterServices()
	s.logger.Info("starting revocation gRPC server",
		log.String("address", s.server.Address()),
	)
	return s.server.Start(ctx)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping revocation gRPC server")
	return s.server.Stop(ctx)
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	s.RegisterServices()
	s.logger.Info("running revocation gRPC server",
		log.String("address", s.server.Address()),
	)
	return s.server.Run()
}

// GRPCServer returns the underlying grpc.Server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.server.Server()
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.server.Address()
}

// SetServing reports the registry's availability to health checks.
func (s *Server) SetServing(serving bool) {
	s.server.SetServingStatus(HealthService, serving)
}
