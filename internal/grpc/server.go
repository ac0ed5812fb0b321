package grpc

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

// Server wraps the gRPC server
type Server struct {
	grpcServer    *grpc.Server
	streamManager *StreamManager
	port          string
	logger        hclog.Logger
}

// DefaultMaxMessageBytes is the largest message a protobuf can encode
const DefaultMaxMessageBytes = math.MaxInt32

// NewServer creates and configures a new gRPC server. maxMessageBytes caps
// sent and received messages; zero means DefaultMaxMessageBytes.
func NewServer(port string, maxMessageBytes int, invoker Invoker, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("grpc")

	s := &Server{
		streamManager: NewStreamManager(logger),
		port:          port,
		logger:        logger,
	}

	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	s.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(s.logUnary),
		grpc.MaxRecvMsgSize(maxMessageBytes),
		grpc.MaxSendMsgSize(maxMessageBytes),
	)
	s.grpcServer.RegisterService(&MethodChannelServiceDesc, NewMethodChannelService(invoker, s.streamManager, logger))

	return s
}

// Start listens on the configured port and serves until stopped
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(lis)
}

// Serve serves on lis until stopped
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server starting", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil {
		return errors.Wrap(err, "gRPC server failed")
	}
	return nil
}

// Stop ends all subscriptions and gracefully stops the gRPC server
func (s *Server) Stop() {
	s.logger.Info("stopping gRPC server")
	s.streamManager.Close()
	s.grpcServer.GracefulStop()
	s.logger.Info("gRPC server stopped")
}

// GetStreamManager returns the stream manager (the download channel notifies it)
func (s *Server) GetStreamManager() *StreamManager {
	return s.streamManager
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	ctx = hclog.WithContext(ctx, s.logger, "method", info.FullMethod)
	resp, err := handler(ctx, req)
	s.logger.Info("rpc",
		"method", info.FullMethod,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return resp, err
}
