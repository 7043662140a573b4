package ipc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the ScriptCall service's single Call method over an
// existing grpc.ClientConn (dialed with grpc.WithCodec(jsonCodec{}) to
// match the server's wire format).
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

// Call invokes the remote Call method and returns its response.
func (c *Client) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	resp := new(CallResponse)
	if err := c.conn.Invoke(ctx, "/corechain.ipc.ScriptCall/Call", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Dial connects to addr using the json codec the server expects.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.Dial(addr, grpc.WithInsecure(), grpc.WithCodec(jsonCodec{}))
}
