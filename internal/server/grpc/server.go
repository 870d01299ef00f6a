// Package grpc exposes the vault services over gRPC. Messages are JSON
// encoded with api.Codec; the service descriptor is declared by hand in
// service.go.
package grpc

import (
	"context"
	"net"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/services"
	"google.golang.org/grpc"
)

// Services bundles the business services the transport delegates to.
type Services struct {
	Accounts *services.AccountService
	Queries  *services.RoleQueryService
	Commands *services.RoleCommandService
	Recovery *services.RecoveryService
	Ledger   *services.LedgerService
}

type GRPCServer struct {
	address string
	svc     Services
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, svc Services) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		svc:     svc,
	}
}

// NewServer builds a grpc.Server with the codec, the session interceptor
// and the vault service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(api.Codec{}),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())
	return srv.Serve(listen)
}
