package grpc

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"downloads-bridge/internal/channel"
)

const (
	ServiceName     = "bridge.v1.MethodChannel"
	invokeMethod    = "/" + ServiceName + "/Invoke"
	subscribeMethod = "/" + ServiceName + "/Subscribe"
)

// MethodChannelServer is the server API of bridge.v1.MethodChannel.
//
// Invoke takes a Struct {channel, method, args} and returns the reply
// envelope as a ListValue. Subscribe takes a Struct {consumer_id} and streams
// one Struct per saved file.
type MethodChannelServer interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
	Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// MethodChannelServiceDesc describes bridge.v1.MethodChannel for grpc.Server.RegisterService
var MethodChannelServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MethodChannelServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bridge/v1/method_channel.proto",
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MethodChannelServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: invokeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MethodChannelServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MethodChannelServer).Subscribe(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Invoker delivers an encoded method call to a channel
type Invoker interface {
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// MethodChannelService implements MethodChannelServer on top of a channel Invoker
type MethodChannelService struct {
	invoker       Invoker
	streamManager *StreamManager
	logger        hclog.Logger
}

var _ MethodChannelServer = (*MethodChannelService)(nil)

// NewMethodChannelService creates a new MethodChannel service implementation
func NewMethodChannelService(invoker Invoker, streamManager *StreamManager, logger hclog.Logger) *MethodChannelService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &MethodChannelService{
		invoker:       invoker,
		streamManager: streamManager,
		logger:        logger,
	}
}

// Invoke forwards a method call to the named channel
func (s *MethodChannelService) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	fields := req.GetFields()
	name := fields["channel"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "channel is required")
	}

	call := &structpb.Struct{Fields: make(map[string]*structpb.Value, 2)}
	for _, key := range []string{"method", "args"} {
		if v, ok := fields[key]; ok {
			call.Fields[key] = v
		}
	}
	payload, err := protojson.Marshal(call)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to encode call: %v", err)
	}

	envelope, err := s.invoker.Invoke(ctx, name, payload)
	if errors.Is(err, channel.ErrMalformedCall) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to invoke channel: %v", err)
	}

	reply := &structpb.ListValue{}
	if err := protojson.Unmarshal(envelope, reply); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode reply: %v", err)
	}
	return reply, nil
}

// Subscribe streams saved-file events to a subscriber until it disconnects
func (s *MethodChannelService) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	consumerID := req.GetFields()["consumer_id"].GetStringValue()
	if consumerID == "" {
		return status.Error(codes.InvalidArgument, "consumer_id is required")
	}

	logger := s.logger.With("consumer_id", consumerID)
	logger.Info("consumer subscribed")

	events := s.streamManager.Register(consumerID)
	defer s.streamManager.Unregister(consumerID, events)

	for {
		select {
		case saved, ok := <-events:
			if !ok {
				logger.Info("subscription closed")
				return nil
			}
			msg, err := savedFileToStruct(saved)
			if err != nil {
				return status.Errorf(codes.Internal, "failed to encode event: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				logger.Warn("failed to send event", "error", err)
				return err
			}
			logger.Debug("sent event", "location", saved.Location)
		case <-stream.Context().Done():
			logger.Info("consumer disconnected")
			return nil
		}
	}
}
