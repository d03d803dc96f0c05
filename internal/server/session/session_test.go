package session

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/chatwire/chatwire/internal/protocol"
)

func TestSessionEchoesHandlerResponse(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sess := New(1, server, func(uid uint32, t protocol.MessageType, env protocol.Envelope) []byte {
		resp := protocol.MakeResponse(env.ID, []byte(`{"msg":"pong"}`), func() int64 { return 0 })
		out, _ := resp.Marshal()
		return out
	}, nil)
	go sess.Run()

	req := protocol.MakeRequest(1, "ping", []byte(`{}`), func() int64 { return 0 })
	body, _ := req.Marshal()
	if _, err := client.Write(protocol.EncodeFrame(protocol.Request, body)); err != nil {
		t.Fatal(err)
	}

	header := make([]byte, protocol.HeaderSize)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(client, header); err != nil {
		t.Fatalf("reading response header: %v", err)
	}
	typ, n, err := protocol.DecodeHeader(header)
	if err != nil {
		t.Fatal(err)
	}
	if typ != protocol.Response {
		t.Fatalf("expected Response frame, got %v", typ)
	}
	respBody := make([]byte, n)
	if _, err := io.ReadFull(client, respBody); err != nil {
		t.Fatal(err)
	}
	if string(respBody) != `{"id":1,"result":{"msg":"pong"},"timestamp":0}` {
		t.Fatalf("unexpected response body: %s", respBody)
	}
}

func TestSessionClosesOnNonRequestFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan error, 1)
	sess := New(2, server, nil, func(uid uint32, cause error) { closed <- cause })
	go sess.Run()

	push := protocol.MakePush([]byte(`{}`), func() int64 { return 0 })
	body, _ := push.Marshal()
	client.Write(protocol.EncodeFrame(protocol.Push, body))

	select {
	case cause := <-closed:
		if cause == nil {
			t.Fatal("expected a protocol error cause")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never closed on a non-request frame")
	}
}

func TestSessionClosesOnSchemaViolation(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan error, 1)
	called := false
	sess := New(6, server, func(uid uint32, t protocol.MessageType, env protocol.Envelope) []byte {
		called = true
		return nil
	}, func(uid uint32, cause error) { closed <- cause })
	go sess.Run()

	// A syntactically valid frame (correct header + length) whose body is
	// valid JSON but not an object: Envelope can never unmarshal from it.
	client.Write(protocol.EncodeFrame(protocol.Request, []byte(`[1,2,3]`)))

	select {
	case cause := <-closed:
		if cause == nil {
			t.Fatal("expected a decode error cause")
		}
		var decodeErr *protocol.DecodeError
		if !errors.As(cause, &decodeErr) {
			t.Fatalf("expected *protocol.DecodeError, got %T: %v", cause, cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never closed on a schema violation")
	}
	if called {
		t.Fatal("handler must not be invoked for a body that failed to decode")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closes := 0
	sess := New(3, server, nil, func(uid uint32, cause error) { closes++ })
	sess.Close(nil)
	sess.Close(nil)
	if closes != 1 {
		t.Fatalf("expected close handler to fire once, fired %d times", closes)
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected StateClosed, got %v", sess.State())
	}
}

func TestSendAfterCloseIsNoop(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sess := New(4, server, nil, nil)
	sess.Close(nil)
	// Must not panic or block: the session is closed and no writer
	// goroutine is running.
	sess.Send(protocol.Push, []byte(`{}`))
}

func TestWriteQueueOverflowClosesSession(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan error, 1)
	sess := New(5, server, nil, func(uid uint32, cause error) { closed <- cause })
	sess.writeHighWater = 2
	sess.writeCh = make(chan []byte, 2)
	// No writer goroutine started (sess.Run not called) and nothing
	// drains client, so the channel fills and the next Send overflows.
	for i := 0; i < 3; i++ {
		sess.Send(protocol.Push, []byte(`{}`))
	}

	select {
	case cause := <-closed:
		if _, ok := cause.(*ErrWriteQueueOverflow); !ok {
			t.Fatalf("expected ErrWriteQueueOverflow, got %T: %v", cause, cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to close on write queue overflow")
	}
}
