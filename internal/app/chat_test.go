package app

import (
	"net"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/server/session"
)

func newTestSession(t *testing.T, uid uint32, m *session.Manager) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	sess := session.New(uid, server, nil, nil)
	m.Add(sess)
}

func TestLoginSetsNameAndRejectsEmpty(t *testing.T) {
	r := router.New()
	m := session.NewManager()
	Register(r, m)

	uid := m.NextUID()
	newTestSession(t, uid, m)

	params, _ := json.Marshal(map[string]any{"name": "alice"})
	resp := r.DispatchRequest(protocol.Request, envelope(1, "login", params), uid)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if got := m.GetName(uid); got != "alice" {
		t.Fatalf("expected name alice, got %q", got)
	}

	empty, _ := json.Marshal(map[string]any{"name": ""})
	resp = r.DispatchRequest(protocol.Request, envelope(2, "login", empty), uid)
	if resp.Error == nil {
		t.Fatal("expected a json-shape error for an empty name")
	}
}

func TestClientListReflectsRegisteredNames(t *testing.T) {
	r := router.New()
	m := session.NewManager()
	Register(r, m)

	uidA := m.NextUID()
	newTestSession(t, uidA, m)
	m.SetName(uidA, "alice")

	uidB := m.NextUID()
	newTestSession(t, uidB, m)
	m.SetName(uidB, "bob")

	resp := r.DispatchRequest(protocol.Request, envelope(3, "client_list", nil), uidA)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var out struct {
		Clients []struct {
			UID  uint32 `json:"uid"`
			Name string `json:"name"`
		} `json:"clients"`
	}
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Clients) != 2 {
		t.Fatalf("expected 2 clients, got %+v", out.Clients)
	}
	names := map[uint32]string{}
	for _, c := range out.Clients {
		names[c.UID] = c.Name
	}
	if names[uidA] != "alice" || names[uidB] != "bob" {
		t.Fatalf("expected alice and bob under their uids, got %+v", out.Clients)
	}
}

func TestSendPrivateKnownTargetDelivered(t *testing.T) {
	r := router.New()
	m := session.NewManager()
	Register(r, m)

	uidA := m.NextUID()
	newTestSession(t, uidA, m)
	m.SetName(uidA, "alice")

	uidB := m.NextUID()
	newTestSession(t, uidB, m)
	m.SetName(uidB, "bob")

	params, _ := json.Marshal(map[string]any{"to_uid": uidB, "text": "hi"})
	resp := r.DispatchRequest(protocol.Request, envelope(4, "send_private", params), uidA)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var delivered struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(resp.Result, &delivered); err != nil {
		t.Fatal(err)
	}
	if !delivered.Delivered {
		t.Fatal("expected delivered=true")
	}
}

func TestSendPrivateUnknownTargetNotDelivered(t *testing.T) {
	r := router.New()
	m := session.NewManager()
	Register(r, m)

	uidA := m.NextUID()
	newTestSession(t, uidA, m)

	params, _ := json.Marshal(map[string]any{"to_uid": uint32(999), "text": "hi"})
	resp := r.DispatchRequest(protocol.Request, envelope(5, "send_private", params), uidA)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var delivered struct {
		Delivered bool `json:"delivered"`
	}
	json.Unmarshal(resp.Result, &delivered)
	if delivered.Delivered {
		t.Fatal("expected delivered=false for an unregistered target")
	}
}

func TestPing(t *testing.T) {
	r := router.New()
	m := session.NewManager()
	Register(r, m)

	resp := r.DispatchRequest(protocol.Request, envelope(6, "ping", nil), 1)
	if string(resp.Result) != `{"msg":"pong"}` {
		t.Fatalf("unexpected ping result: %s", resp.Result)
	}
}

func envelope(id uint32, method string, params json.RawMessage) protocol.Envelope {
	return protocol.Envelope{ID: id, Method: method, Params: params}
}
