// Package server implements the accept loop (Server) and the
// multi-listener supervisor (Controller) that wires accepted connections
// into Sessions registered with a SessionManager and dispatched through
// a Router.
package server

import (
	"net"
	"sync/atomic"

	"github.com/chatwire/chatwire/internal/logger"
)

// ConnHandler is invoked once per accepted connection, on a new
// goroutine of its own, so a blocking handler never stalls the accept
// loop.
type ConnHandler func(conn net.Conn)

// Server wraps a bound net.Listener with an accept loop that re-arms
// itself after every successful accept and stops only when the listener
// is closed.
type Server struct {
	listener net.Listener
	onConn   ConnHandler
	onStart  func()
	onStop   func()
	stopped  atomic.Bool
}

// New constructs a Server around an already-bound listener.
func New(listener net.Listener, onConn ConnHandler) *Server {
	return &Server{listener: listener, onConn: onConn}
}

// Addr returns the bound listener's address, useful when the listener
// was bound to an OS-assigned ephemeral port (":0").
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// OnStart registers a callback fired once, just before Serve begins
// accepting.
func (s *Server) OnStart(fn func()) { s.onStart = fn }

// OnStop registers a callback fired once Serve's accept loop exits.
func (s *Server) OnStop(fn func()) { s.onStop = fn }

// Serve runs the accept loop until the listener is closed or Stop is
// called. It blocks the calling goroutine.
func (s *Server) Serve() error {
	if s.onStart != nil {
		s.onStart()
	}
	defer func() {
		if s.onStop != nil {
			s.onStop()
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopped.Load() {
				return nil
			}
			logger.Warningf("accept failed: %v", err)
			return err
		}
		go s.onConn(conn)
	}
}

// Stop closes the underlying listener, causing Serve's accept loop to
// exit without re-arming. Stop is idempotent.
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	return s.listener.Close()
}
