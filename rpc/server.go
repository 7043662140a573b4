package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/riscvlabs/corechain/log"
)

// maxRequestContentLength bounds a single JSON-RPC POST body, the way an
// operator-facing API refuses to read an unbounded client upload.
const maxRequestContentLength = 1024 * 1024

// HTTPTimeouts bounds how long the server waits on a connection's read,
// write, and idle phases.
type HTTPTimeouts struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultHTTPTimeouts are the timeouts a node runs with unless configured
// otherwise.
var DefaultHTTPTimeouts = HTTPTimeouts{
	ReadTimeout:  30 * time.Second,
	WriteTimeout: 30 * time.Second,
	IdleTimeout:  120 * time.Second,
}

// Server serves a Handler's methods as JSON-RPC 2.0 over HTTP, routed
// with httprouter and wrapped with a CORS policy.
type Server struct {
	handler  *Handler
	addr     string
	origins  []string
	timeouts HTTPTimeouts

	srv *http.Server
	ln  net.Listener
	log log.Logger
}

// NewServer builds a Server on addr. origins configures the allowed CORS
// origins for the single POST endpoint; an empty list disables CORS
// entirely and serves the router directly.
func NewServer(addr string, handler *Handler, origins []string, timeouts HTTPTimeouts) *Server {
	s := &Server{
		handler:  handler,
		addr:     addr,
		origins:  origins,
		timeouts: timeouts,
		log:      log.NewModuleLogger(log.RPC),
	}

	router := httprouter.New()
	router.POST("/", s.handleRPC)

	var top http.Handler = router
	if len(origins) > 0 {
		top = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(router)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      top,
		ReadTimeout:  timeouts.ReadTimeout,
		WriteTimeout: timeouts.WriteTimeout,
		IdleTimeout:  timeouts.IdleTimeout,
	}
	return s
}

// Start binds the listener synchronously, so a caller learns immediately
// if the port is already in use, then serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("rpc server stopped", "error", err)
		}
	}()
	s.log.Info("rpc server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, useful when Start was called
// with a ":0" port.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop gracefully shuts the server down, giving in-flight requests up to
// 5 seconds to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := validateRequest(r); err != nil {
		writeJSON(w, errResponse(nil, CodeInvalidRequest, err.Error()))
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxRequestContentLength)
	defer body.Close()

	var req Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, "invalid JSON: "+err.Error()))
		return
	}

	writeJSON(w, s.handler.Dispatch(req))
}

// validateRequest rejects requests whose declared length exceeds
// maxRequestContentLength and requests whose Content-Type is set to
// anything other than JSON; a request with no Content-Type is accepted.
// The method is not checked here, since the router only routes POST.
func validateRequest(r *http.Request) error {
	if r.ContentLength > maxRequestContentLength {
		return errContentTooLarge
	}
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && ct != "application/json; charset=utf-8" {
		return errUnsupportedContentType
	}
	return nil
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

var (
	errContentTooLarge        = errors.New("request body exceeds maximum content length")
	errUnsupportedContentType = errors.New("unsupported content type, want application/json")
)
