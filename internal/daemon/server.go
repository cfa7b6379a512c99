package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/status"
)

// Health service names.
const (
	HealthStore = "gravvy.store"
	HealthAuth  = "gravvy.auth"
)

// Server manages the gRPC server lifecycle for an account daemon.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
	unsub      func()
	done       chan struct{}
}

// NewServer creates a gRPC server bound to the account's Unix domain socket.
func NewServer(p Params, b *bus.Bus, m *status.Machine, control *Control, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = p.Layout.SocketPath(p.Account)
	}
	if err := p.Layout.EnsureDir(p.Account); err != nil {
		return nil, fmt.Errorf("create account dir: %w", err)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	srv.RegisterService(controlServiceDesc(), control)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
		done:       make(chan struct{}),
	}
	events, unsub := b.Subscribe("", 64)
	s.unsub = unsub
	s.setStore(m.Current())
	hs.SetServingStatus(HealthAuth, healthpb.HealthCheckResponse_NOT_SERVING)
	go s.watch(events)
	return s, nil
}

// Start serves gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

func (s *Server) watch(events <-chan bus.Event) {
	defer close(s.done)
	for evt := range events {
		switch payload := evt.Payload.(type) {
		case status.StatusChange:
			s.setStore(payload.To)
		case bus.AuthState:
			s.health.SetServingStatus(HealthAuth, servingStatus(payload.Authenticated))
		}
	}
}

func (s *Server) setStore(state status.State) {
	s.health.SetServingStatus(HealthStore, servingStatus(state == status.Open))
	s.health.SetServingStatus("", servingStatus(state == status.Open))
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.unsub()
	<-s.done
	_ = os.Remove(s.socketPath)
}
