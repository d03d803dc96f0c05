// Package router dispatches decoded Request envelopes to registered
// application method handlers and translates their outcome into a
// Response envelope.
package router

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/chatwire/chatwire/internal/protocol"
)

// Handler implements one application method. uid identifies the calling
// session so handlers can consult or mutate session-scoped state (e.g.
// display name) via whatever registry they were constructed with.
type Handler func(params json.RawMessage, uid uint32) (json.RawMessage, error)

// Router is a thread-safe method-name -> Handler table.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback func(id uint32, method string) protocol.Envelope
	now      func() int64
}

// New constructs an empty Router with the default fallback error builder
// (returns -32601 Method not found).
func New() *Router {
	r := &Router{
		handlers: make(map[string]Handler),
		now:      func() int64 { return time.Now().Unix() },
	}
	r.fallback = func(id uint32, method string) protocol.Envelope {
		return protocol.MakeError(id, protocol.CodeMethodNotFound, fmt.Sprintf("Method not found: %s", method), r.now)
	}
	return r
}

// Add registers handler under name, overwriting any existing handler for
// that name.
func (r *Router) Add(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Exists reports whether name has a registered handler.
func (r *Router) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// SetFallback overrides the error envelope built when no handler is
// registered for the requested method. A non-Request frame and an empty
// method always produce the built-in -32600 Invalid Request envelope.
func (r *Router) SetFallback(fn func(id uint32, method string) protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// jsonShapeError lets a handler signal "params did not match my expected
// shape" distinctly from any other failure, routed to -32001 instead of
// the generic -32000.
type jsonShapeError struct{ err error }

func (e *jsonShapeError) Error() string { return e.err.Error() }
func (e *jsonShapeError) Unwrap() error { return e.err }

// JSONShapeError wraps err so Dispatch reports it as a -32001 error
// rather than a generic -32000 handler failure.
func JSONShapeError(err error) error { return &jsonShapeError{err: err} }

// Dispatch handles one decoded envelope and returns the Response
// envelope to send back. env.Method/env.Params are read only when
// env came from a Request frame; callers must not call Dispatch for
// Response or Push frames.
func (r *Router) Dispatch(env protocol.Envelope, uid uint32) protocol.Envelope {
	if env.Method == "" {
		return r.fallbackFor(env.ID, "")
	}

	r.mu.RLock()
	handler, ok := r.handlers[env.Method]
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		return fallback(env.ID, env.Method)
	}

	params := env.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	result, err := handler(params, uid)
	if err != nil {
		var shapeErr *jsonShapeError
		if errors.As(err, &shapeErr) {
			return protocol.MakeError(env.ID, protocol.CodeJSONShapeError, shapeErr.Error(), r.now)
		}
		return protocol.MakeError(env.ID, protocol.CodeHandlerError, err.Error(), r.now)
	}

	return protocol.MakeResponse(env.ID, result, r.now)
}

func (r *Router) fallbackFor(id uint32, method string) protocol.Envelope {
	return protocol.MakeError(id, protocol.CodeInvalidRequest, "Invalid Request: No method", r.now)
}

// DispatchRequest is the Controller-facing entry point: it validates
// that t is a Request before dispatching, returning an Invalid Request
// error envelope otherwise.
func (r *Router) DispatchRequest(t protocol.MessageType, env protocol.Envelope, uid uint32) protocol.Envelope {
	if t != protocol.Request {
		return protocol.MakeError(env.ID, protocol.CodeInvalidRequest, "Invalid Request: Not a request", r.now)
	}
	return r.Dispatch(env, uid)
}
