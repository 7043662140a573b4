// Package ipc exposes core/script's CallScript debug entry point over
// gRPC; rpc's HTTP JSON-RPC surface does not carry this call. The service is hand-registered against
// a grpc.ServiceDesc (no protoc-generated stub) and carries messages as
// JSON via a custom grpc.Codec, since generating real protobuf code is
// not available in this tree.
package ipc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/riscvlabs/corechain/core/script"
)

// CallRequest is the wire request for the Call method.
type CallRequest struct {
	Location  []byte
	Argv      [][]byte
	Method    uint64
	Payload   []byte
	Step      uint64
	MaxCycles uint64
	TimeoutMs int64
}

// CallResponse is the wire response for the Call method.
type CallResponse struct {
	ErrorCode uint64
	Payload   []byte
	TraceID   string
	Err       string
}

// Backend is the script-executing collaborator the service calls
// through to; bound to a concrete script.MachineFactory at server
// construction.
type Backend struct {
	Factory script.MachineFactory
}

func (b *Backend) call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pkt, traceID, err := script.CallScript(ctx, b.Factory, script.CodeLocation(req.Location), req.Argv,
		script.RequestPacket{MethodID: req.Method, Payload: req.Payload}, req.Step, req.MaxCycles)

	resp := &CallResponse{TraceID: traceID}
	if err != nil {
		resp.Err = err.Error()
		return resp, nil
	}
	resp.ErrorCode = pkt.ErrorCode
	resp.Payload = pkt.Payload
	return resp, nil
}

func callHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(CallRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	b := srv.(*Backend)
	if interceptor == nil {
		return b.call(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/corechain.ipc.ScriptCall/Call"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return b.call(ctx, req.(*CallRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-authored equivalent of a protoc-generated
// _ServiceDesc: one unary method, Call, dispatching to callHandler.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "corechain.ipc.ScriptCall",
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ipc/service.proto",
}
