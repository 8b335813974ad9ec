package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "interview.speech.v1.SpeechSession"

const (
	methodStartListening            = "/" + ServiceName + "/StartListening"
	methodStopListening             = "/" + ServiceName + "/StopListening"
	methodClearCurrentAnswer        = "/" + ServiceName + "/ClearCurrentAnswer"
	methodTakeCurrentAnswerAndClear = "/" + ServiceName + "/TakeCurrentAnswerAndClear"
	methodGetStatus                 = "/" + ServiceName + "/GetStatus"
)

// SpeechSessionServer is the server API for the speech session service.
type SpeechSessionServer interface {
	StartListening(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
	StopListening(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ClearCurrentAnswer(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	TakeCurrentAnswerAndClear(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterSpeechSessionServer registers srv with s.
func RegisterSpeechSessionServer(s grpc.ServiceRegistrar, srv SpeechSessionServer) {
	s.RegisterService(&SpeechSessionServiceDesc, srv)
}

// SpeechSessionServiceDesc describes the service for grpc.Server.
var SpeechSessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpeechSessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartListening", Handler: startListeningHandler},
		{MethodName: "StopListening", Handler: stopListeningHandler},
		{MethodName: "ClearCurrentAnswer", Handler: clearCurrentAnswerHandler},
		{MethodName: "TakeCurrentAnswerAndClear", Handler: takeCurrentAnswerAndClearHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "interview/speech/v1/session.proto",
}

func startListeningHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechSessionServer).StartListening(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStartListening}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SpeechSessionServer).StartListening(ctx, req.(*wrapperspb.BoolValue))
	}
	return interceptor(ctx, in, info, handler)
}

func stopListeningHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechSessionServer).StopListening(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStopListening}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SpeechSessionServer).StopListening(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func clearCurrentAnswerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechSessionServer).ClearCurrentAnswer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodClearCurrentAnswer}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SpeechSessionServer).ClearCurrentAnswer(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func takeCurrentAnswerAndClearHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechSessionServer).TakeCurrentAnswerAndClear(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodTakeCurrentAnswerAndClear}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SpeechSessionServer).TakeCurrentAnswerAndClear(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SpeechSessionServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetStatus}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SpeechSessionServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
