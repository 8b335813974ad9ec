package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the speech session service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) StartListening(ctx context.Context, microphoneEnabled bool, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodStartListening, wrapperspb.Bool(microphoneEnabled), new(emptypb.Empty), opts...)
}

func (c *Client) StopListening(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodStopListening, new(emptypb.Empty), new(emptypb.Empty), opts...)
}

func (c *Client) ClearCurrentAnswer(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodClearCurrentAnswer, new(emptypb.Empty), new(emptypb.Empty), opts...)
}

func (c *Client) TakeCurrentAnswerAndClear(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodTakeCurrentAnswerAndClear, new(emptypb.Empty), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// GetStatus returns the status struct as a plain map.
func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetStatus, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
