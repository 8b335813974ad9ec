// Package grpcapi exposes the speech session manager over gRPC.
package grpcapi

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/service/speech"
)

// Session is the part of speech.Manager the server drives.
type Session interface {
	StartListening(microphoneEnabled bool)
	StopListening()
	ClearCurrentAnswer()
	TakeCurrentAnswerAndClear() string
	Status() speech.Status
}

// Server implements SpeechSessionServer over a Session.
type Server struct {
	session Session
	logger  zerolog.Logger
}

// Register creates a Server for session and registers it with g.
func Register(g *grpc.Server, session Session) *Server {
	s := &Server{
		session: session,
		logger:  logging.WithComponent("grpc-api"),
	}
	RegisterSpeechSessionServer(g, s)
	return s
}

// StartListening starts recognition. It fails with FailedPrecondition when no
// engine is available.
func (s *Server) StartListening(_ context.Context, in *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	if !s.session.Status().Supported {
		return nil, status.Error(codes.FailedPrecondition, "speech recognition is not supported")
	}
	s.session.StartListening(in.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *Server) StopListening(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	s.session.StopListening()
	return &emptypb.Empty{}, nil
}

func (s *Server) ClearCurrentAnswer(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	s.session.ClearCurrentAnswer()
	return &emptypb.Empty{}, nil
}

func (s *Server) TakeCurrentAnswerAndClear(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	answer := s.session.TakeCurrentAnswerAndClear()
	s.logger.Debug().Int("length", len(answer)).Msg("Answer taken")
	return wrapperspb.String(answer), nil
}

// GetStatus returns the manager status as a struct with the same keys as
// the HTTP status document.
func (s *Server) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := s.session.Status()
	out, err := structpb.NewStruct(map[string]interface{}{
		"managerId":     st.ManagerID,
		"state":         st.State,
		"listening":     st.Listening,
		"supported":     st.Supported,
		"currentAnswer": st.CurrentAnswer,
		"interim":       st.Interim,
		"lastError":     st.LastError,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}
