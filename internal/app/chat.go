// Package app registers the chat application's five methods against a
// Router and SessionManager: login, client_list, send_public,
// send_private, and ping. It owns none of the framing/session machinery
// below it — it only implements the method contract those layers
// dispatch into.
package app

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/server/session"
)

// marshalPush builds the JSON shape sent to every push-style notification:
// {"event": "...", ...fields}.
func marshalPush(event string, fields map[string]any) json.RawMessage {
	body := map[string]any{"event": event}
	for k, v := range fields {
		body[k] = v
	}
	out, _ := json.Marshal(body)
	return out
}

// Register wires login/client_list/send_public/send_private/ping onto r,
// all operating against sessions.
func Register(r *router.Router, sessions *session.Manager) {
	r.Add("login", func(params json.RawMessage, uid uint32) (json.RawMessage, error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, router.JSONShapeError(fmt.Errorf("login: %w", err))
		}
		if req.Name == "" {
			return nil, router.JSONShapeError(fmt.Errorf("login: name is required"))
		}
		sessions.SetName(uid, req.Name)

		sessions.Broadcast(marshalPush("user_joined", map[string]any{
			"uid":  uid,
			"name": req.Name,
		}))

		return json.Marshal(map[string]any{
			"uid":    uid,
			"name":   req.Name,
			"status": "success",
		})
	})

	r.Add("client_list", func(params json.RawMessage, uid uint32) (json.RawMessage, error) {
		entries := sessions.List()
		clients := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			clients = append(clients, map[string]any{"uid": e.UID, "name": e.Name})
		}
		return json.Marshal(map[string]any{"clients": clients})
	})

	r.Add("send_public", func(params json.RawMessage, uid uint32) (json.RawMessage, error) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, router.JSONShapeError(fmt.Errorf("send_public: %w", err))
		}

		sessions.Broadcast(marshalPush("public_message", map[string]any{
			"from_uid":  uid,
			"from_name": sessions.GetName(uid),
			"text":      req.Text,
		}))

		return json.Marshal(map[string]any{"delivered": true})
	})

	r.Add("send_private", func(params json.RawMessage, uid uint32) (json.RawMessage, error) {
		var req struct {
			ToUID uint32 `json:"to_uid"`
			Text  string `json:"text"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, router.JSONShapeError(fmt.Errorf("send_private: %w", err))
		}

		delivered := sessions.SendTo(req.ToUID, marshalPush("private_message", map[string]any{
			"from_uid":  uid,
			"from_name": sessions.GetName(uid),
			"text":      req.Text,
		}))

		return json.Marshal(map[string]any{"delivered": delivered})
	})

	r.Add("ping", func(params json.RawMessage, uid uint32) (json.RawMessage, error) {
		return json.Marshal(map[string]any{"msg": "pong"})
	})
}

// BroadcastUserLeft is published by the controller's session-closed
// handler; kept here so the event payload shape lives next to the rest
// of the chat protocol's push shapes.
func BroadcastUserLeft(sessions *session.Manager, uid uint32) {
	sessions.Broadcast(marshalPush("user_left", map[string]any{
		"uid": uid,
	}))
}
