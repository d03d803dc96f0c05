package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chatwire/chatwire/internal/app"
	"github.com/chatwire/chatwire/internal/events"
	"github.com/chatwire/chatwire/internal/logger"
	"github.com/chatwire/chatwire/internal/metrics"
	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/server/session"
	"github.com/chatwire/chatwire/internal/transport"
)

// instance is one running listener: its bound Server plus the resources
// needed to stop it cleanly.
type instance struct {
	cfg    transport.ServerConfig
	server *Server
	cancel context.CancelFunc
}

// Controller supervises zero or more listeners, each bound to its own
// port, sharing one Router, one SessionManager and one event Bus across
// all of them.
type Controller struct {
	Router   *router.Router
	Sessions *session.Manager
	Bus      *events.Bus
	Metrics  *metrics.Registry

	mu        sync.Mutex
	instances map[uint16]*instance
	group     *errgroup.Group
	groupCtx  context.Context
}

// NewController constructs a Controller around the given Router,
// SessionManager and event Bus; Metrics may be nil to disable counters.
func NewController(r *router.Router, sessions *session.Manager, bus *events.Bus, m *metrics.Registry) *Controller {
	g, ctx := errgroup.WithContext(context.Background())
	return &Controller{
		Router:    r,
		Sessions:  sessions,
		Bus:       bus,
		Metrics:   m,
		instances: make(map[uint16]*instance),
		group:     g,
		groupCtx:  ctx,
	}
}

// Start binds and begins accepting connections on cfg.Port. Starting an
// already-bound port returns an error.
func (c *Controller) Start(cfg transport.ServerConfig) error {
	c.mu.Lock()
	if _, exists := c.instances[cfg.Port]; exists {
		c.mu.Unlock()
		return fmt.Errorf("listener already running on port %d", cfg.Port)
	}
	c.mu.Unlock()

	var tlsConfig *tls.Config
	var watcher *transport.CertWatcher
	if cfg.Mode == transport.Secure {
		var err error
		watcher, err = transport.NewCertWatcher(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return err
		}
		tlsConfig = watcher.Config()
	}

	ln, err := transport.Listen(cfg, tlsConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if watcher != nil {
		go watcher.Run(ctx)
	}

	srv := New(ln, func(conn net.Conn) { c.handleConn(conn) })
	srv.OnStart(func() { logger.Info("listening on port %d (%s)", cfg.Port, cfg.Mode) })
	srv.OnStop(func() { logger.Info("stopped listening on port %d", cfg.Port) })

	c.mu.Lock()
	c.instances[cfg.Port] = &instance{cfg: cfg, server: srv, cancel: cancel}
	c.mu.Unlock()

	c.group.Go(func() error {
		return srv.Serve()
	})
	return nil
}

// Stop stops the listener bound to port, if any.
func (c *Controller) Stop(port uint16) error {
	c.mu.Lock()
	inst, ok := c.instances[port]
	if ok {
		delete(c.instances, port)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no listener running on port %d", port)
	}
	inst.cancel()
	return inst.server.Stop()
}

// StopAll stops every running listener.
func (c *Controller) StopAll() {
	c.mu.Lock()
	ports := make([]uint16, 0, len(c.instances))
	for p := range c.instances {
		ports = append(ports, p)
	}
	c.mu.Unlock()
	for _, p := range ports {
		c.Stop(p)
	}
}

// Wait blocks until every listener started via Start has stopped,
// returning the first non-nil error any of them produced.
func (c *Controller) Wait() error {
	return c.group.Wait()
}

// IsRunning reports whether a listener is bound to port.
func (c *Controller) IsRunning(port uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.instances[port]
	return ok
}

// Addr returns the actual bound address of the listener started under
// cfg.Port, useful when that port was 0 (OS-assigned).
func (c *Controller) Addr(port uint16) (net.Addr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[port]
	if !ok {
		return nil, false
	}
	return inst.server.Addr(), true
}

func (c *Controller) handleConn(conn net.Conn) {
	uid := c.Sessions.NextUID()
	sess := session.New(uid, conn, c.handleMessage, c.handleClose)
	c.Sessions.Add(sess)
	if c.Metrics != nil {
		c.Metrics.SessionOpened()
	}
	logger.Debug("session %d connected from %s", uid, conn.RemoteAddr())
	sess.Run()
}

func (c *Controller) handleMessage(uid uint32, t protocol.MessageType, env protocol.Envelope) []byte {
	if c.Metrics != nil {
		c.Metrics.FrameDecoded(t.String())
	}
	if c.Bus != nil {
		payload, _ := env.Marshal()
		c.Bus.PublishMessage(events.SessionMessage{UID: uid, Method: env.Method, ReqID: env.ID, Payload: payload})
	}

	respEnv := c.Router.DispatchRequest(t, env, uid)
	if c.Metrics != nil {
		outcome := "ok"
		if respEnv.Error != nil {
			switch respEnv.Error.Code {
			case protocol.CodeMethodNotFound:
				outcome = "not_found"
			case protocol.CodeInvalidRequest:
				outcome = "invalid"
			default:
				outcome = "handler_error"
			}
		}
		c.Metrics.RequestRouted(env.Method, outcome)
	}

	out, _ := respEnv.Marshal()
	return out
}

// rejectReason classifies a session-close cause into the metrics
// FrameRejected reason label, or "" for a nil or unrecognized cause
// (e.g. a caller-initiated close with no triggering error).
func rejectReason(cause error) string {
	if cause == nil {
		return ""
	}
	var decodeErr *protocol.DecodeError
	if errors.As(cause, &decodeErr) {
		return decodeErr.Reason
	}
	var transportErr *protocol.TransportError
	if errors.As(cause, &transportErr) {
		return "io_error"
	}
	return ""
}

func (c *Controller) handleClose(uid uint32, cause error) {
	c.Sessions.Remove(uid)
	app.BroadcastUserLeft(c.Sessions, uid)
	if c.Metrics != nil {
		c.Metrics.SessionClosed()
		if reason := rejectReason(cause); reason != "" {
			c.Metrics.FrameRejected(reason)
		}
	}
	if c.Bus != nil {
		c.Bus.PublishClosed(events.SessionClosed{UID: uid})
	}
	if cause != nil {
		logger.Debug("session %d closed: %v", uid, cause)
	} else {
		logger.Debug("session %d closed", uid)
	}
}
