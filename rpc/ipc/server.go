package ipc

import (
	"net"

	"google.golang.org/grpc"

	"github.com/riscvlabs/corechain/core/script"
	"github.com/riscvlabs/corechain/log"
)

// Server wraps a grpc.Server exposing the ScriptCall service over addr.
type Server struct {
	addr string
	srv  *grpc.Server
	ln   net.Listener
	log  log.Logger
}

// NewServer builds a Server bound to factory, the script backend every
// Call request is evaluated against.
func NewServer(addr string, factory script.MachineFactory) *Server {
	srv := grpc.NewServer(grpc.CustomCodec(jsonCodec{}))
	srv.RegisterService(&serviceDesc, &Backend{Factory: factory})
	return &Server{addr: addr, srv: srv, log: log.NewModuleLogger(log.RPC)}
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil {
			s.log.Error("ipc grpc server stopped", "error", err)
		}
	}()
	s.log.Info("ipc grpc server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop gracefully stops the grpc server, waiting for in-flight RPCs.
func (s *Server) Stop() {
	s.srv.GracefulStop()
}
