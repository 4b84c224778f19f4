package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

func newGRPCClient(t *testing.T, g *Gateway) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewGRPCServer(g, nil).RegisterWithServer(srv)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return conn
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGRPCInvoke(t *testing.T) {
	g, _, _ := newTestGateway(t)
	conn := newGRPCClient(t, g)

	req := mustStruct(t, map[string]interface{}{
		"tool":      "status",
		"arguments": map[string]interface{}{"session_id": "sess-1"},
	})
	resp := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), GRPCInvokeMethod, req, resp); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	result := resp.GetFields()["result"].GetStructValue()
	if result == nil {
		t.Fatalf("Expected result object, got %v", resp)
	}
	if port := result.GetFields()["port"].GetNumberValue(); port != 3001 {
		t.Errorf("Expected port 3001, got %v", port)
	}
	if st := result.GetFields()["status"].GetStringValue(); st != "running" {
		t.Errorf("Expected running, got %s", st)
	}
}

func TestGRPCInvokeNumericArguments(t *testing.T) {
	g, _, _ := newTestGateway(t)
	conn := newGRPCClient(t, g)

	req := mustStruct(t, map[string]interface{}{
		"tool":      "logs",
		"arguments": map[string]interface{}{"session_id": "sess-1", "limit": 10},
	})
	resp := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), GRPCInvokeMethod, req, resp); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if list := resp.GetFields()["result"].GetListValue(); list == nil {
		t.Errorf("Expected list result, got %v", resp)
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	g, _, _ := newTestGateway(t)
	conn := newGRPCClient(t, g)

	tests := []struct {
		name string
		req  map[string]interface{}
		code codes.Code
	}{
		{"missing tool", map[string]interface{}{}, codes.InvalidArgument},
		{"unknown tool", map[string]interface{}{"tool": "deploy"}, codes.Unimplemented},
		{"not found", map[string]interface{}{"tool": "status", "arguments": map[string]interface{}{"session_id": "nope"}}, codes.NotFound},
		{"invalid params", map[string]interface{}{"tool": "logs", "arguments": map[string]interface{}{"session_id": "sess-1", "limit": 0}}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := conn.Invoke(context.Background(), GRPCInvokeMethod, mustStruct(t, tt.req), new(structpb.Struct))
			if got := status.Code(err); got != tt.code {
				t.Errorf("Expected %s, got %s (%v)", tt.code, got, err)
			}
		})
	}
}

func TestGRPCStreamLogs(t *testing.T) {
	g, _, _ := newTestGateway(t)
	conn := newGRPCClient(t, g)

	if _, err := g.Logs().Append("sess-1", types.StreamStdout, "first\nsecond"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: "StreamLogs", ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, GRPCStreamLogsMethod)
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	if err := stream.SendMsg(mustStruct(t, map[string]interface{}{"session_id": "sess-1", "backlog": 2})); err != nil {
		t.Fatal(err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatal(err)
	}

	recv := func() string {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			t.Fatalf("RecvMsg failed: %v", err)
		}
		return msg.GetFields()["text"].GetStringValue()
	}

	if got := recv(); got != "first" {
		t.Errorf("Expected first, got %s", got)
	}
	if got := recv(); got != "second" {
		t.Errorf("Expected second, got %s", got)
	}

	if _, err := g.Logs().Append("sess-1", types.StreamStderr, "live"); err != nil {
		t.Fatal(err)
	}
	if got := recv(); got != "live" {
		t.Errorf("Expected live, got %s", got)
	}
}

func TestGRPCStreamLogsUnknownSession(t *testing.T) {
	g, _, _ := newTestGateway(t)
	conn := newGRPCClient(t, g)

	desc := &grpc.StreamDesc{StreamName: "StreamLogs", ServerStreams: true}
	stream, err := conn.NewStream(context.Background(), desc, GRPCStreamLogsMethod)
	if err != nil {
		t.Fatal(err)
	}
	_ = stream.SendMsg(mustStruct(t, map[string]interface{}{"session_id": "nope"}))
	_ = stream.CloseSend()

	err = stream.RecvMsg(new(structpb.Struct))
	if status.Code(err) != codes.NotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	if grpcCode(types.KindPortRangeExhausted) != codes.ResourceExhausted {
		t.Error("Expected ResourceExhausted for PortRangeExhausted")
	}
	if grpcCode(types.KindInternalError) != codes.Internal {
		t.Error("Expected Internal for InternalError")
	}
}
