package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"downloads-bridge/internal/channel"
	"downloads-bridge/internal/downloads"
	"downloads-bridge/internal/models"
)

// ErrNotImplemented is returned when the channel has no answer for a method
var ErrNotImplemented = errors.New("method not implemented")

// ReplyError is an error reply from a channel
type ReplyError struct {
	Code    string
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client calls a MethodChannel server
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to target. Without options the connection is insecure.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts = append([]grpc.DialOption{WithMaxMessageBytes(DefaultMaxMessageBytes)}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", target)
	}
	return &Client{conn: conn}, nil
}

// WithMaxMessageBytes sets the send and receive limit for every call. It
// should match the server's GRPC_MAX_MESSAGE_BYTES.
func WithMaxMessageBytes(n int) grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(n), grpc.MaxCallRecvMsgSize(n))
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Invoke sends a method call to channelName and decodes the reply envelope.
// []byte arguments travel base64 encoded.
func (c *Client) Invoke(ctx context.Context, channelName, method string, args map[string]any) (*channel.Envelope, error) {
	fields := map[string]any{
		"channel": channelName,
		"method":  method,
	}
	if args != nil {
		fields["args"] = args
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode call")
	}

	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, invokeMethod, in, out); err != nil {
		return nil, err
	}

	data, err := protojson.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode reply")
	}
	return channel.DecodeEnvelope(data)
}

// SaveFile saves data as fileName through the download channel and returns
// its location
func (c *Client) SaveFile(ctx context.Context, channelName, fileName string, data []byte) (string, error) {
	env, err := c.Invoke(ctx, channelName, downloads.MethodSaveFile, map[string]any{
		downloads.ArgFileName: fileName,
		downloads.ArgBytes:    data,
	})
	if err != nil {
		return "", err
	}

	switch env.Kind {
	case channel.KindSuccess:
		var location string
		if err := json.Unmarshal(env.Result, &location); err != nil {
			return "", errors.Wrap(err, "unexpected result")
		}
		return location, nil
	case channel.KindError:
		return "", &ReplyError{Code: env.Code, Message: env.Message}
	default:
		return "", errors.Wrapf(ErrNotImplemented, "%s on %s", downloads.MethodSaveFile, channelName)
	}
}

// Subscription receives saved-file events
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe starts receiving saved-file events as consumerID
func (c *Client) Subscribe(ctx context.Context, consumerID string) (*Subscription, error) {
	stream, err := c.conn.NewStream(ctx, &MethodChannelServiceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, err
	}

	in, err := structpb.NewStruct(map[string]any{"consumer_id": consumerID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next event. It returns io.EOF when the server ends the stream.
func (s *Subscription) Recv() (models.SavedFile, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return models.SavedFile{}, err
	}
	return structToSavedFile(msg)
}
