// Package session implements the server-side per-connection state
// machine (Session) and the process-wide connection registry
// (SessionManager).
package session

import (
	"bufio"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/transport"
)

// State is a Session's position in its read/write lifecycle.
type State int

const (
	StateReadingHeader State = iota
	StateReadingBody
	StateClosed
)

// DefaultWriteQueueHighWaterMark bounds how many frames may be queued for
// write before a session is considered unresponsive and closed.
const DefaultWriteQueueHighWaterMark = 256

// ErrWriteQueueOverflow is the close reason recorded when a session's
// write queue exceeds its high-water mark.
type ErrWriteQueueOverflow struct{ UID uint32 }

func (e *ErrWriteQueueOverflow) Error() string {
	return "write queue overflow"
}

// MessageHandler processes one decoded Request envelope for uid,
// returning the bytes to write back as the Response body. The envelope
// has already passed schema decoding by the time a Session calls this;
// a body that fails to decode never reaches a handler.
type MessageHandler func(uid uint32, reqType protocol.MessageType, env protocol.Envelope) []byte

// CloseHandler is invoked exactly once when a session transitions to
// StateClosed, regardless of which side initiated the close.
type CloseHandler func(uid uint32, cause error)

// Session owns one accepted connection: it drives the read loop, and
// serializes all writes onto a single buffered channel so concurrent
// callers (the read loop handling a request, and a SessionManager
// broadcast/sendTo from another goroutine) never interleave frame bytes
// on the wire.
type Session struct {
	uid    uint32
	stream transport.Stream
	reader *bufio.Reader

	state atomic.Int32
	once  sync.Once

	writeCh chan []byte
	done    chan struct{}

	onMessage MessageHandler
	onClose   CloseHandler

	writeHighWater int
}

// New constructs a Session around an already-established stream. Call
// Run to start its read/write loops.
func New(uid uint32, stream transport.Stream, onMessage MessageHandler, onClose CloseHandler) *Session {
	s := &Session{
		uid:            uid,
		stream:         stream,
		reader:         bufio.NewReader(stream),
		writeCh:        make(chan []byte, DefaultWriteQueueHighWaterMark),
		done:           make(chan struct{}),
		onMessage:      onMessage,
		onClose:        onClose,
		writeHighWater: DefaultWriteQueueHighWaterMark,
	}
	s.state.Store(int32(StateReadingHeader))
	return s
}

// UID returns the session's unique, monotonically-assigned identifier.
func (s *Session) UID() uint32 { return s.uid }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Run drives the session until the connection errors, is closed, or a
// decode failure occurs. It starts the writer goroutine and then blocks
// in the read loop on the calling goroutine; callers typically invoke
// Run in its own goroutine per accepted connection.
func (s *Session) Run() {
	go s.writeLoop()
	s.readLoop()
}

func (s *Session) readLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.state.Store(int32(StateReadingHeader))
		t, body, err := protocol.ReadFrame(s.reader)
		if err != nil {
			s.Close(err)
			return
		}
		s.state.Store(int32(StateReadingBody))

		if t != protocol.Request {
			// Non-request frames from a client are a protocol violation;
			// drop the connection rather than silently ignore it.
			s.Close(&protocol.ProtocolError{Reason: "session received non-request frame"})
			return
		}

		env, err := protocol.UnmarshalEnvelope(body)
		if err != nil {
			// A well-framed body that fails to decode is the same class of
			// failure as a framing violation: emit no response and close,
			// never leave the session open on a schema violation.
			s.Close(err)
			return
		}

		resp := s.onMessage(s.uid, t, env)
		if resp != nil {
			s.Send(protocol.Response, resp)
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case frame, ok := <-s.writeCh:
			if !ok {
				return
			}
			if err := s.writeFrame(frame); err != nil {
				s.Close(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) writeFrame(frame []byte) error {
	s.stream.SetDeadline(time.Time{})
	_, err := s.stream.Write(frame)
	if err != nil {
		return &protocol.TransportError{Op: "session_write", Err: err}
	}
	return nil
}

// Send enqueues a frame for write. It is safe to call from any goroutine,
// including from a SessionManager broadcast/sendTo running outside this
// session's own goroutines.
func (s *Session) Send(t protocol.MessageType, body []byte) {
	if s.State() == StateClosed {
		return
	}
	frame := protocol.EncodeFrame(t, body)
	select {
	case s.writeCh <- frame:
	default:
		// Queue is at its high-water mark: the peer isn't draining fast
		// enough. Close rather than buffer without bound.
		s.Close(&ErrWriteQueueOverflow{UID: s.uid})
	}
}

// Close idempotently tears down the session's transport and fires the
// close handler exactly once with the triggering cause (nil for a
// caller-initiated close).
func (s *Session) Close(cause error) {
	s.once.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		s.stream.Close()
		if s.onClose != nil {
			s.onClose(s.uid, cause)
		}
	})
}
