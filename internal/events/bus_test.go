package events

import (
	"testing"
	"time"
)

func TestBusDeliversSessionClosed(t *testing.T) {
	b := NewBus(4)
	defer b.Shutdown()

	ch := b.SubClosed()
	b.PublishClosed(SessionClosed{UID: 7})

	select {
	case msg := <-ch:
		evt, ok := msg.(SessionClosed)
		if !ok || evt.UID != 7 {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SessionClosed")
	}
}

func TestBusDeliversSessionMessage(t *testing.T) {
	b := NewBus(4)
	defer b.Shutdown()

	ch := b.SubMessage()
	b.PublishMessage(SessionMessage{UID: 1, Method: "ping", ReqID: 9})

	select {
	case msg := <-ch:
		evt, ok := msg.(SessionMessage)
		if !ok || evt.Method != "ping" || evt.ReqID != 9 {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SessionMessage")
	}
}

func TestBusUnsubStopsDelivery(t *testing.T) {
	b := NewBus(4)
	defer b.Shutdown()

	ch := b.SubClosed()
	b.Unsub(ch)

	b.PublishClosed(SessionClosed{UID: 1})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected no delivery after Unsub")
		}
	case <-time.After(200 * time.Millisecond):
	}
}
