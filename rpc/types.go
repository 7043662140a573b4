// Package rpc exposes the transaction pool's submission and
// block-template surfaces over JSON-RPC 2.0 HTTP, routed with
// github.com/julienschmidt/httprouter and wrapped with
// github.com/rs/cors the way a node's operator-facing API is served.
// Grounded on klaytn's networks/rpc package (HTTPTimeouts, request
// content-type/size validation) for the ambient HTTP-serving shape; the
// method set itself is new, scoped to what core/txpool exposes.
package rpc

import "encoding/json"

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response object; exactly one of Result/Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes per the JSON-RPC 2.0 spec, plus an application range for
// pool-specific rejections.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeRejected = -32000
)

func errResponse(id json.RawMessage, code int, msg string) Response {
	return Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: msg}, ID: id}
}

func okResponse(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}
