// Package client implements chatwire's client-side half: a half-duplex
// read loop over a Transport, request-id correlation for responses, and
// callback fan-out for pushes and lifecycle events.
package client

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/transport"
)

// RunMode selects who drives the client's I/O.
type RunMode int

const (
	// Threaded starts a dedicated goroutine at Connect that reads frames
	// until Close. This is the default.
	Threaded RunMode = iota
	// Manual requires the caller to invoke Poll repeatedly to drain one
	// ready frame at a time.
	Manual
)

// ResponseCallback is invoked exactly once for the Response matching the
// request id it was registered under: with the error object on failure,
// the result object on success.
type ResponseCallback func(result json.RawMessage, rpcErr *protocol.RPCError)

// PushHandler is invoked for every Push frame the client receives.
type PushHandler func(push json.RawMessage)

// disconnectedError is the synthetic RPCError delivered to any request
// still pending when the client closes, per the Open Question in
// spec.md §9 ("blocking request on close").
var disconnectedError = &protocol.RPCError{Code: protocol.CodeClientDisposed, Message: "disconnected"}

// Client is the half-duplex, single-connection JSON-RPC client: outbound
// writes are serialized onto one channel, inbound frames are dispatched
// by id (Response) or fanned out (Push).
type Client struct {
	mode RunMode

	running atomic.Bool
	closeOnce sync.Once

	stream transport.Stream
	reader *bufio.Reader

	writeCh chan []byte
	done    chan struct{}

	nextID uint32

	cbMu      sync.Mutex
	callbacks map[uint32]ResponseCallback

	onConnect    func()
	onDisconnect func()
	onError      func(error)
	onPush       PushHandler
}

// New constructs a Client in the given RunMode. Connect must be called
// before any request.
func New(mode RunMode) *Client {
	return &Client{
		mode:      mode,
		writeCh:   make(chan []byte, 256),
		done:      make(chan struct{}),
		callbacks: make(map[uint32]ResponseCallback),
	}
}

// OnConnect registers the callback fired exactly once, after Connect
// succeeds and before any push or response callback.
func (c *Client) OnConnect(fn func()) { c.onConnect = fn }

// OnDisconnect registers the callback fired exactly once, when the
// client transitions to closed. No further callbacks fire afterward.
func (c *Client) OnDisconnect(fn func()) { c.onDisconnect = fn }

// OnError registers the callback fired when a transport or decode
// failure terminates the read loop, just before OnDisconnect fires.
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// OnPush registers the callback fired for every Push frame received.
func (c *Client) OnPush(fn PushHandler) { c.onPush = fn }

// IsRunning reports whether the client is currently connected.
func (c *Client) IsRunning() bool { return c.running.Load() }

// Connect dials cfg and starts the read loop. It returns true on first
// success; a Connect call while already running returns false without
// reconnecting. In Threaded mode the read loop runs on a dedicated
// goroutine; in Manual mode the caller must call Poll.
func (c *Client) Connect(ctx context.Context, cfg transport.ClientConfig) bool {
	if c.running.Swap(true) {
		return false
	}

	stream, err := transport.Dial(ctx, cfg)
	if err != nil {
		c.running.Store(false)
		if c.onError != nil {
			c.onError(err)
		}
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		return false
	}

	c.stream = stream
	c.reader = bufio.NewReader(stream)

	if c.onConnect != nil {
		c.onConnect()
	}

	go c.writeLoop()

	switch c.mode {
	case Threaded:
		go c.readLoop()
	case Manual:
		// Caller drives reads via Poll.
	}
	return true
}

// Poll reads and dispatches exactly one frame. It is a no-op in
// Threaded mode, where the dedicated goroutine already owns the read
// loop. Callers in Manual mode must call Poll repeatedly.
func (c *Client) Poll() {
	if c.mode != Manual || !c.running.Load() {
		return
	}
	c.readOne()
}

func (c *Client) readLoop() {
	for c.running.Load() {
		if !c.readOne() {
			return
		}
	}
}

// readOne reads and dispatches a single frame, returning false if the
// read loop should stop (I/O error or decode failure).
func (c *Client) readOne() bool {
	t, body, err := protocol.ReadFrame(c.reader)
	if err != nil {
		c.fail(err)
		return false
	}

	env, err := protocol.UnmarshalEnvelope(body)
	if err != nil {
		c.fail(err)
		return false
	}

	c.handleMessage(t, env)
	return true
}

func (c *Client) handleMessage(t protocol.MessageType, env protocol.Envelope) {
	switch t {
	case protocol.Response:
		c.cbMu.Lock()
		cb, ok := c.callbacks[env.ID]
		if ok {
			delete(c.callbacks, env.ID)
		}
		c.cbMu.Unlock()
		if !ok || cb == nil {
			return
		}
		if env.Error != nil {
			cb(nil, env.Error)
			return
		}
		result := env.Result
		if len(result) == 0 {
			result = json.RawMessage("{}")
		}
		cb(result, nil)
	case protocol.Push:
		if c.onPush == nil {
			return
		}
		push := env.Push
		if len(push) == 0 {
			push = json.RawMessage("{}")
		}
		c.onPush(push)
	default:
		// A client never receives a Request frame; ignore rather than
		// treat it as a protocol violation worth disconnecting over.
	}
}

// fail terminates the client on a transport or decode error: it invokes
// OnError then closes, which invokes OnDisconnect exactly once.
func (c *Client) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
	c.Close()
}

// writeLoop drains writeCh, performing one async_write per frame so
// concurrent RequestAsync callers never interleave bytes on the wire.
func (c *Client) writeLoop() {
	for {
		select {
		case frame, ok := <-c.writeCh:
			if !ok {
				return
			}
			if _, err := c.stream.Write(frame); err != nil {
				c.fail(&protocol.TransportError{Op: "client_write", Err: err})
				return
			}
		case <-c.done:
			return
		}
	}
}

// RequestAsync allocates a fresh request id, records cb for exactly-once
// fulfillment, and sends a Request frame. cb is invoked later from the
// read-loop goroutine (Threaded) or from a Poll call (Manual) with
// either the result or the error object.
func (c *Client) RequestAsync(method string, params json.RawMessage, cb ResponseCallback) {
	if !c.running.Load() {
		return
	}

	id := atomic.AddUint32(&c.nextID, 1)
	c.cbMu.Lock()
	c.callbacks[id] = cb
	c.cbMu.Unlock()

	env := protocol.MakeRequest(id, method, params, nowUnix)
	body, err := env.Marshal()
	if err != nil {
		c.cbMu.Lock()
		delete(c.callbacks, id)
		c.cbMu.Unlock()
		return
	}

	frame := protocol.EncodeFrame(protocol.Request, body)
	select {
	case c.writeCh <- frame:
	case <-c.done:
	}
}

// Request is the blocking convenience wrapper around RequestAsync: it
// returns the result object on success, or an error describing the
// RPCError on failure (including the synthetic "disconnected" error
// delivered to requests still pending at Close).
func (c *Client) Request(method string, params json.RawMessage) (json.RawMessage, error) {
	type outcome struct {
		result json.RawMessage
		rpcErr *protocol.RPCError
	}
	done := make(chan outcome, 1)

	c.RequestAsync(method, params, func(result json.RawMessage, rpcErr *protocol.RPCError) {
		done <- outcome{result: result, rpcErr: rpcErr}
	})

	if !c.running.Load() {
		return nil, fmt.Errorf("client not connected")
	}

	o := <-done
	if o.rpcErr != nil {
		return nil, fmt.Errorf("rpc error %d: %s", o.rpcErr.Code, o.rpcErr.Message)
	}
	return o.result, nil
}

// Close is idempotent: it abandons outstanding callbacks by resolving
// each with a synthetic disconnected error (unblocking any waiting
// Request caller), closes the transport, and fires OnDisconnect exactly
// once. No further callbacks fire for this instance afterward.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.running.Store(false)
		close(c.done)

		c.cbMu.Lock()
		pending := c.callbacks
		c.callbacks = make(map[uint32]ResponseCallback)
		c.cbMu.Unlock()

		for _, cb := range pending {
			if cb != nil {
				cb(nil, disconnectedError)
			}
		}

		if c.stream != nil {
			c.stream.Close()
		}
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
	})
}

func nowUnix() int64 {
	return time.Now().Unix()
}
