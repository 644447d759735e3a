// Package grpc exposes the gRPC surface of the server: the standard health
// service behind the access token interceptor.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/access"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
)

type TokenVerifier interface {
	Verify(token string) auth.VerifyResult
}

type GRPCServer struct {
	address string
	logger  logging.Logger
	tokens  TokenVerifier
	health  *health.Server
	// policy maps a full method name to its role whitelist. Methods missing
	// from the map only need a valid token.
	policy map[string][]access.Role
}

func NewGRPCServer(a string, l logging.Logger, tokens TokenVerifier) *GRPCServer {
	if l == nil {
		l = logging.Nop{}
	}
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		tokens:  tokens,
		health:  health.NewServer(),
		policy: map[string][]access.Role{
			healthListMethod: {access.RoleAdmin},
		},
	}
}

// Restrict limits fullMethod to the given roles. Admins always pass.
func (s *GRPCServer) Restrict(fullMethod string, roles ...access.Role) {
	s.policy[fullMethod] = roles
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
