package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/logstore"
	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// gRPC method names of the devserver.v1.Gateway service
const (
	GRPCServiceName      = "devserver.v1.Gateway"
	GRPCInvokeMethod     = "/" + GRPCServiceName + "/Invoke"
	GRPCStreamLogsMethod = "/" + GRPCServiceName + "/StreamLogs"
)

// GatewayServer is the server API of devserver.v1.Gateway.
//
// Invoke takes {"tool": string, "arguments": object} and returns
// {"result": value}. StreamLogs takes {"session_id": string, "backlog": number}
// and streams one log entry per message until the session is evicted or the
// client goes away.
type GatewayServer interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StreamLogs(req *structpb.Struct, stream grpc.ServerStream) error
}

// GatewayServiceDesc describes devserver.v1.Gateway. Messages are
// google.protobuf.Struct so no generated code is needed.
var GatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamLogs",
			Handler:       streamLogsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "devserver/v1/gateway.proto",
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GRPCInvokeMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamLogsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GatewayServer).StreamLogs(in, stream)
}

// GRPCServer serves devserver.v1.Gateway on top of a Gateway
type GRPCServer struct {
	gateway *Gateway
	logger  *slog.Logger
}

// NewGRPCServer creates the gRPC adapter for g
func NewGRPCServer(g *Gateway, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{gateway: g, logger: logger}
}

// RegisterWithServer registers the service with a gRPC server
func (s *GRPCServer) RegisterWithServer(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&GatewayServiceDesc, s)
}

// Invoke runs one tool call
func (s *GRPCServer) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tool := req.GetFields()["tool"].GetStringValue()
	if tool == "" {
		return nil, status.Error(codes.InvalidArgument, "tool is required")
	}
	var args map[string]interface{}
	if a := req.GetFields()["arguments"].GetStructValue(); a != nil {
		args = a.AsMap()
	}

	result, err := s.gateway.Invoke(ctx, tool, args)
	if err != nil {
		return nil, grpcError(err)
	}
	payload, err := tools.DecodeResult(result)
	if err != nil {
		return nil, grpcError(err)
	}

	var value interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, grpcError(types.WrapError(types.KindInternalError, err, "failed to decode tool result"))
	}
	out, err := structpb.NewStruct(map[string]interface{}{"result": value})
	if err != nil {
		return nil, grpcError(types.WrapError(types.KindInternalError, err, "failed to encode tool result"))
	}
	return out, nil
}

// StreamLogs follows a session's output
func (s *GRPCServer) StreamLogs(req *structpb.Struct, stream grpc.ServerStream) error {
	args := tools.Args(req.AsMap())
	sessionID, err := args.SessionID()
	if err != nil {
		return grpcError(err)
	}
	backlog, err := args.IntInRange(config.ParamBacklog, 0, 0, s.gateway.logs.Capacity())
	if err != nil {
		return grpcError(err)
	}
	streamName, err := args.String(config.ParamStream)
	if err != nil {
		return grpcError(err)
	}
	origin, ok := types.ParseStreamOrigin(streamName)
	if !ok {
		return status.Errorf(codes.InvalidArgument, "unknown stream %q", streamName)
	}

	ctx := stream.Context()
	sub, err := s.gateway.logs.Subscribe(ctx, sessionID, logstore.SubscribeOptions{Backlog: backlog})
	if err != nil {
		return grpcError(err)
	}
	defer sub.Close()

	s.logger.Debug("log stream opened", "session_id", sessionID, "backlog", backlog)
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-sub.C():
			if !ok {
				return nil
			}
			if origin != "" && entry.Stream != origin {
				continue
			}
			msg, err := entryStruct(entry)
			if err != nil {
				return grpcError(types.WrapError(types.KindInternalError, err, "failed to encode log entry"))
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func entryStruct(e types.LogEntry) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"seq":        float64(e.Seq),
		"session_id": e.SessionID,
		"stream":     string(e.Stream),
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
		"text":       e.Text,
	})
}

// grpcCode maps an error kind to a gRPC status code
func grpcCode(kind types.ErrorKind) codes.Code {
	switch kind {
	case types.KindInvalidParams, types.KindInvalidProjectPath:
		return codes.InvalidArgument
	case types.KindUnknownTool:
		return codes.Unimplemented
	case types.KindUnknownProjectType, types.KindSpawnFailure:
		return codes.FailedPrecondition
	case types.KindPortRangeExhausted:
		return codes.ResourceExhausted
	case types.KindSessionNotFound:
		return codes.NotFound
	case types.KindAlreadyRunning:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

func grpcError(err error) error {
	kind := types.KindOf(err)
	return status.Error(grpcCode(kind), string(kind)+": "+types.PublicMessage(err))
}
